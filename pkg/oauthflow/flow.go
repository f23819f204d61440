// Package oauthflow implements the GitHub OAuth Authorization Code dance
// (spec §4.2 installation/user auth surface, out of core per spec.md §1,
// SPEC_FULL.md §4 "OAuth dance"). It is thin glue over internal/auth,
// pkg/installation, and pkg/githubapp — grounded on the teacher's
// internal/auth/oidc_flow.go, generalized from OIDC to GitHub's OAuth app
// flow and from a Redis "oidc_state:" key to "oauth:state:".
package oauthflow

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v74/github"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/DuckOriDuck/whaleray/internal/auth"
	"github.com/DuckOriDuck/whaleray/internal/httpserver"
	"github.com/DuckOriDuck/whaleray/pkg/githubapp"
	"github.com/DuckOriDuck/whaleray/pkg/installation"
)

const stateTTL = 10 * time.Minute

// Config holds the OAuth app registration and redirect targets.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	AppSlug      string
	FrontendURL  string
}

// Flow handles /auth/start, /auth/callback, /me, and /repositories.
type Flow struct {
	oauth2Cfg     *oauth2.Config
	cfg           Config
	redis         *redis.Client
	authorizer    *auth.Authorizer
	users         *UserStore
	installations *installation.Store
	minter        *githubapp.TokenMinter
	logger        *slog.Logger
}

// NewFlow creates a Flow.
func NewFlow(cfg Config, rdb *redis.Client, authorizer *auth.Authorizer, users *UserStore, installations *installation.Store, minter *githubapp.TokenMinter, logger *slog.Logger) *Flow {
	return &Flow{
		oauth2Cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     githuboauth.Endpoint,
			Scopes:       []string{"read:user"},
		},
		cfg:           cfg,
		redis:         rdb,
		authorizer:    authorizer,
		users:         users,
		installations: installations,
		minter:        minter,
		logger:        logger,
	}
}

// MountPublic registers the unauthenticated OAuth routes /auth/start and
// /auth/callback. /me and /repositories require a bearer session token and
// are registered by MountAuthenticated under the authenticated router group.
func (f *Flow) MountPublic(r chi.Router) {
	r.Get("/auth/start", f.handleStart)
	r.Get("/auth/callback", f.handleCallback)
}

// MountAuthenticated registers routes that require an Identity in context.
func (f *Flow) MountAuthenticated(r chi.Router) {
	r.Get("/me", f.handleMe)
	r.Get("/repositories", f.handleRepositories)
}

func (f *Flow) handleStart(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "generating oauth state")
		return
	}

	if err := f.redis.Set(r.Context(), "oauth:state:"+state, "1", stateTTL).Err(); err != nil {
		f.logger.Error("storing oauth state", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "storing oauth state")
		return
	}

	http.Redirect(w, r, f.oauth2Cfg.AuthCodeURL(state), http.StatusFound)
}

func (f *Flow) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state := r.URL.Query().Get("state")
	if state == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "missing state parameter")
		return
	}

	result, err := f.redis.GetDel(ctx, "oauth:state:"+state).Result()
	if err != nil || result == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid or expired state")
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		f.logger.Warn("github oauth error", "error", errParam)
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "github authorization failed")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "missing code parameter")
		return
	}

	token, err := f.oauth2Cfg.Exchange(ctx, code)
	if err != nil {
		f.logger.Error("github code exchange failed", "error", err)
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "code exchange failed")
		return
	}

	client := github.NewClient(f.oauth2Cfg.Client(ctx, token))
	ghUser, _, err := client.Users.Get(ctx, "")
	if err != nil {
		f.logger.Error("fetching github user", "error", err)
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "failed to fetch github identity")
		return
	}
	login := ghUser.GetLogin()

	u, err := f.users.FindOrCreate(ctx, login)
	if err != nil {
		f.logger.Error("resolving user", "login", login, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "resolving user")
		return
	}

	sessionToken, err := f.authorizer.IssueToken(u.ID, u.GitHubLogin)
	if err != nil {
		f.logger.Error("issuing session token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "issuing session token")
		return
	}

	redirectURL := fmt.Sprintf("%s?token=%s", f.cfg.FrontendURL, sessionToken)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

type meResponse struct {
	UserID          string                    `json:"userId"`
	GitHubLogin     string                    `json:"githubLogin"`
	NeedInstallation bool                     `json:"needInstallation"`
	InstallURL      string                    `json:"installUrl,omitempty"`
	Installations   []installation.Installation `json:"installations"`
}

func (f *Flow) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	installs, err := f.installations.ListByUser(r.Context(), identity.UserID.String())
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "listing installations")
		return
	}

	resp := meResponse{
		UserID:           identity.UserID.String(),
		GitHubLogin:      identity.GitHubLogin,
		NeedInstallation: len(installs) == 0,
		Installations:    installs,
	}
	if resp.NeedInstallation {
		resp.InstallURL = fmt.Sprintf("https://github.com/apps/%s/installations/new", f.cfg.AppSlug)
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type repoSummary struct {
	FullName string `json:"fullName"`
	Private  bool   `json:"private"`
}

// handleRepositories lists repositories across every installation granted
// to the caller, evicting any installation that GitHub rejects with
// 401/404 — the original's token-refresh-then-evict pattern
// (SPEC_FULL.md §6, `lambda/auth/repositories.py`).
func (f *Flow) handleRepositories(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	ctx := r.Context()
	installs, err := f.installations.ListByUser(ctx, identity.UserID.String())
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "listing installations")
		return
	}

	// Only a GitHub 401/404 means the installation is gone.
	revoked := func(err error) bool {
		var ghErr *github.ErrorResponse
		return errors.As(err, &ghErr) && ghErr.Response != nil &&
			(ghErr.Response.StatusCode == http.StatusUnauthorized || ghErr.Response.StatusCode == http.StatusNotFound)
	}

	var repos []repoSummary
	for _, inst := range installs {
		token, _, err := f.minter.Mint(ctx, inst.InstallationID)
		if err != nil {
			if !revoked(err) {
				f.logger.Warn("minting installation token failed", "installation_id", inst.InstallationID, "error", err)
				continue
			}
			f.logger.Warn("minting installation token failed, evicting installation",
				"installation_id", inst.InstallationID, "error", err)
			if delErr := f.installations.Delete(ctx, inst.InstallationID); delErr != nil {
				f.logger.Error("evicting installation", "installation_id", inst.InstallationID, "error", delErr)
			}
			continue
		}

		client := github.NewClient(nil).WithAuthToken(token)
		listed, _, err := client.Apps.ListRepos(ctx, nil)
		if err != nil {
			if !revoked(err) {
				f.logger.Warn("listing installation repos failed", "installation_id", inst.InstallationID, "error", err)
				continue
			}
			f.logger.Warn("listing installation repos failed, evicting installation",
				"installation_id", inst.InstallationID, "error", err)
			if delErr := f.installations.Delete(ctx, inst.InstallationID); delErr != nil {
				f.logger.Error("evicting installation", "installation_id", inst.InstallationID, "error", delErr)
			}
			continue
		}

		for _, repo := range listed.Repositories {
			repos = append(repos, repoSummary{FullName: repo.GetFullName(), Private: repo.GetPrivate()})
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"repositories": repos})
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
