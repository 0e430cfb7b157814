package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/github"
	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/notifications"
	"github.com/meshboardio/meshboard/server/posts"
	"github.com/meshboardio/meshboard/server/projects"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/telemetry"
	"github.com/meshboardio/meshboard/server/webhooks"
)

// APIConfig contains the handler level settings of the HTTP API
type APIConfig struct {
	AdminKey            string
	GitHubWebhookSecret string
	SiteConfig          api.SiteConfig
	// CORSAllowedOrigins narrows cross-origin access. Empty allows any origin.
	CORSAllowedOrigins []string
}

type apiHandler struct {
	PublicRouter         *mux.Router
	AdminRouter          *mux.Router
	Router               *mux.Router
	Store                store.Store
	EventStore           activity.Store
	AgentsManager        agents.Manager
	ProjectsManager      projects.Manager
	PostsManager         posts.Manager
	NotificationsManager notifications.Manager
	WebhooksManager      webhooks.Manager
	Receiver             github.Receiver
	AdminAuth            *middleware.AdminAuth
	RateLimiter          *middleware.RateLimiter
	Config               APIConfig
}

// EmptyObject is an empty struct used to return empty JSON object
type emptyObject struct {
}

// APIHandler creates the board HTTP API handler registering all the available
// endpoints. The public, admin and authenticated route sets live on three
// subrouters sharing the /api/v1 prefix, registered in that order: a request
// only reaches the authenticated subrouter when no public or admin route
// matched it first.
func APIHandler(store store.Store, eventStore activity.Store, agentsManager agents.Manager, projectsManager projects.Manager, postsManager posts.Manager, notificationsManager notifications.Manager, webhooksManager webhooks.Manager, receiver github.Receiver, appMetrics telemetry.AppMetrics, rateLimiter *middleware.RateLimiter, config APIConfig) (http.Handler, error) {
	authMiddleware := middleware.NewAuthMiddleware(agentsManager.Authenticate)
	adminAuth := middleware.NewAdminAuth(config.AdminKey)
	corsMiddleware := cors.AllowAll()
	if len(config.CORSAllowedOrigins) > 0 {
		corsMiddleware = cors.New(cors.Options{
			AllowedOrigins: config.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders: []string{"*"},
		})
	}

	rootRouter := mux.NewRouter()
	metricsMiddleware := appMetrics.HTTPMiddleware()
	rootRouter.Use(metricsMiddleware.Handler, corsMiddleware.Handler)

	publicRouter := rootRouter.PathPrefix("/api/v1").Subrouter()
	adminRouter := rootRouter.PathPrefix("/api/v1/admin").Subrouter()
	adminRouter.Use(adminAuth.Handler)
	router := rootRouter.PathPrefix("/api/v1").Subrouter()
	router.Use(authMiddleware.Handler)

	api := apiHandler{
		PublicRouter:         publicRouter,
		AdminRouter:          adminRouter,
		Router:               router,
		Store:                store,
		EventStore:           eventStore,
		AgentsManager:        agentsManager,
		ProjectsManager:      projectsManager,
		PostsManager:         postsManager,
		NotificationsManager: notificationsManager,
		WebhooksManager:      webhooksManager,
		Receiver:             receiver,
		AdminAuth:            adminAuth,
		RateLimiter:          rateLimiter,
		Config:               config,
	}

	api.addSystemEndpoint()
	api.addGitHubEndpoint()
	api.addAdminEndpoint()
	api.addAgentsEndpoint()
	api.addProjectsEndpoint()
	api.addPostsEndpoint()
	api.addCommentsEndpoint()
	api.addWebhooksEndpoint()
	api.addNotificationsEndpoint()

	err := rootRouter.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		methods, err := route.GetMethods()
		if err != nil {
			// prefix routes have no methods
			return nil
		}
		for _, method := range methods {
			template, err := route.GetPathTemplate()
			if err != nil {
				return err
			}
			err = metricsMiddleware.AddHTTPRequestResponseCounter(template, method)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rootRouter, nil
}

func (apiHandler *apiHandler) addSystemEndpoint() {
	systemHandler := NewSystemHandler(apiHandler.Config.SiteConfig)
	apiHandler.PublicRouter.HandleFunc("/health", systemHandler.GetHealth).Methods("GET", "OPTIONS")
	apiHandler.PublicRouter.HandleFunc("/site-config", systemHandler.GetSiteConfig).Methods("GET", "OPTIONS")
}

func (apiHandler *apiHandler) addGitHubEndpoint() {
	githubHandler := NewGitHubHandler(apiHandler.Receiver, apiHandler.Config.GitHubWebhookSecret)
	apiHandler.PublicRouter.HandleFunc("/github/webhooks/{projectId}", githubHandler.HandleDelivery).Methods("POST", "OPTIONS")
}

func (apiHandler *apiHandler) addAdminEndpoint() {
	adminHandler := NewAdminHandler(apiHandler.Store, apiHandler.EventStore, apiHandler.AgentsManager, apiHandler.AdminAuth, apiHandler.RateLimiter)
	apiHandler.PublicRouter.HandleFunc("/admin/session", adminHandler.CreateSession).Methods("POST", "OPTIONS")
	apiHandler.AdminRouter.HandleFunc("/stats", adminHandler.GetStats).Methods("GET", "OPTIONS")
	apiHandler.AdminRouter.HandleFunc("/events", adminHandler.GetAllEvents).Methods("GET", "OPTIONS")
	apiHandler.AdminRouter.HandleFunc("/agents", adminHandler.GetAllAgents).Methods("GET", "OPTIONS")
	apiHandler.AdminRouter.HandleFunc("/agents/{agentId}", adminHandler.DeleteAgent).Methods("DELETE", "OPTIONS")
}

func (apiHandler *apiHandler) addAgentsEndpoint() {
	agentsHandler := NewAgentsHandler(apiHandler.AgentsManager)
	apiHandler.PublicRouter.HandleFunc("/agents", apiHandler.RateLimiter.Limit(middleware.ScopeRegister, agentsHandler.RegisterAgent)).Methods("POST", "OPTIONS")
	apiHandler.Router.HandleFunc("/agents", agentsHandler.GetAllAgents).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/agents/me", agentsHandler.GetSelf).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/agents/me/heartbeat", agentsHandler.Heartbeat).Methods("POST", "OPTIONS")
	apiHandler.Router.HandleFunc("/agents/me/identity", agentsHandler.UpdateIdentity).Methods("PUT", "OPTIONS")
	apiHandler.Router.HandleFunc("/agents/me/identity", agentsHandler.GetSelfIdentity).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/agents/{agentId}/identity", agentsHandler.GetAgentIdentity).Methods("GET", "OPTIONS")
}

func (apiHandler *apiHandler) addProjectsEndpoint() {
	projectsHandler := NewProjectsHandler(apiHandler.ProjectsManager, apiHandler.AgentsManager)
	apiHandler.Router.HandleFunc("/projects", projectsHandler.CreateProject).Methods("POST", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects", projectsHandler.GetAllProjects).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects/{projectId}", projectsHandler.GetProject).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects/{projectId}", projectsHandler.UpdateProject).Methods("PUT", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects/{projectId}", projectsHandler.DeleteProject).Methods("DELETE", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects/{projectId}/members", projectsHandler.AddMember).Methods("POST", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects/{projectId}/members", projectsHandler.GetMembers).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects/{projectId}/members/{agentId}", projectsHandler.RemoveMember).Methods("DELETE", "OPTIONS")
}

func (apiHandler *apiHandler) addPostsEndpoint() {
	postsHandler := NewPostsHandler(apiHandler.PostsManager, apiHandler.AgentsManager)
	apiHandler.Router.HandleFunc("/projects/{projectId}/posts", apiHandler.RateLimiter.Limit(middleware.ScopePostCreate, postsHandler.CreatePost)).Methods("POST", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects/{projectId}/posts", postsHandler.GetProjectPosts).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/posts/{postId}", postsHandler.GetPost).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/posts/{postId}", postsHandler.UpdatePost).Methods("PUT", "OPTIONS")
	apiHandler.Router.HandleFunc("/posts/{postId}", postsHandler.DeletePost).Methods("DELETE", "OPTIONS")
}

func (apiHandler *apiHandler) addCommentsEndpoint() {
	commentsHandler := NewCommentsHandler(apiHandler.PostsManager, apiHandler.AgentsManager)
	apiHandler.Router.HandleFunc("/posts/{postId}/comments", apiHandler.RateLimiter.Limit(middleware.ScopeCommentCreate, commentsHandler.CreateComment)).Methods("POST", "OPTIONS")
	apiHandler.Router.HandleFunc("/posts/{postId}/comments", commentsHandler.GetPostComments).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/comments/{commentId}", commentsHandler.UpdateComment).Methods("PUT", "OPTIONS")
	apiHandler.Router.HandleFunc("/comments/{commentId}", commentsHandler.DeleteComment).Methods("DELETE", "OPTIONS")
}

func (apiHandler *apiHandler) addWebhooksEndpoint() {
	webhooksHandler := NewWebhooksHandler(apiHandler.WebhooksManager)
	apiHandler.Router.HandleFunc("/projects/{projectId}/webhooks", webhooksHandler.CreateWebhook).Methods("POST", "OPTIONS")
	apiHandler.Router.HandleFunc("/projects/{projectId}/webhooks", webhooksHandler.GetProjectWebhooks).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/webhooks/{webhookId}", webhooksHandler.DeleteWebhook).Methods("DELETE", "OPTIONS")
}

func (apiHandler *apiHandler) addNotificationsEndpoint() {
	notificationsHandler := NewNotificationsHandler(apiHandler.NotificationsManager)
	apiHandler.Router.HandleFunc("/notifications", notificationsHandler.GetNotifications).Methods("GET", "OPTIONS")
	apiHandler.Router.HandleFunc("/notifications/read-all", notificationsHandler.MarkAllRead).Methods("POST", "OPTIONS")
	apiHandler.Router.HandleFunc("/notifications/{notificationId}/read", notificationsHandler.MarkRead).Methods("POST", "OPTIONS")
}
