// Package stubserver is a self-contained backend for local development and
// integration tests. It speaks the same HTTP envelope and websocket event
// protocol as the production server: {success, data, message} responses,
// cookie sessions with a 440 stale-session status, and per-project chat
// rooms.
package stubserver

import (
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/teamboard/boardsync/internal/schema"
)

// StatusStaleSession mirrors the backend's login time-out status.
const StatusStaleSession = 440

// Version reported by /api/health.
const Version = "1.4.0"

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// Config holds server options.
type Config struct {
	// Secret signs session tokens. Required.
	Secret []byte

	// AccessTTL bounds the access token. Default 15m.
	AccessTTL time.Duration

	// RefreshTTL bounds the refresh token. Default 7 days.
	RefreshTTL time.Duration

	// Logger for server activity. Default: stderr.
	Logger *log.Logger
}

// Server holds the API state and the chat hub.
type Server struct {
	config Config
	state  *state
	hub    *hub
	engine *gin.Engine
	logger *log.Logger
}

// New builds the server. Call Handler for the http.Handler and Close on
// shutdown.
func New(config Config) (*Server, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("stubserver: secret is required")
	}
	if config.AccessTTL == 0 {
		config.AccessTTL = 15 * time.Minute
	}
	if config.RefreshTTL == 0 {
		config.RefreshTTL = 7 * 24 * time.Hour
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[stub] ", log.LstdFlags)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowCredentials = false
	engine.Use(cors.New(corsConfig))

	s := &Server{
		config: config,
		state:  newState(),
		logger: config.Logger,
		engine: engine,
	}
	s.hub = newHub(s.state, config.Logger)
	s.setRoutes()
	return s, nil
}

// Handler returns the root handler serving both the API and /ws.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close disconnects all websocket clients.
func (s *Server) Close() {
	s.hub.close()
}

// Seed pre-populates a project with one sprint for tests and demos. It
// returns the project, the sprint, and its columns.
func (s *Server) Seed(ownerEmail, projectName string) (schema.Project, schema.Sprint, []schema.BoardColumn) {
	ownerID := userIDFor(ownerEmail)
	project := s.state.createProject(ownerID, ownerEmail, projectName, "")
	sprint := s.state.createSprint(project.ID, "Sprint 1")
	return project, sprint, s.state.columnsForSprint(sprint.ID)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func (s *Server) setRoutes() {
	s.engine.GET("/api/health", func(c *gin.Context) {
		ok(c, gin.H{"status": "ok", "version": Version})
	})

	auth := s.engine.Group("/api/auth")
	{
		auth.POST("/login", s.handleLogin)
		auth.POST("/logout", s.handleLogout)
		auth.POST("/refresh", s.handleRefresh)
	}

	api := s.engine.Group("/api")
	api.Use(s.requireSession())
	{
		api.GET("/projects", s.handleListProjects)
		api.POST("/projects", s.handleCreateProject)
		api.GET("/projects/:projectID", s.handleGetProject)
		api.GET("/projects/:projectID/sprints", s.handleListSprints)
		api.POST("/projects/:projectID/sprints", s.handleCreateSprint)
		api.GET("/projects/:projectID/messages", s.handleListMessages)
		api.POST("/projects/:projectID/invitations", s.handleInvite)
		api.POST("/invitations/:token/accept", s.handleAcceptInvitation)

		api.GET("/sprints/:sprintID/columns", s.handleListColumns)
		api.GET("/sprints/:sprintID/tasks", s.handleListTasks)

		api.POST("/tasks", s.handleCreateTask)
		api.PATCH("/tasks/:taskID", s.handlePatchTask)
		api.DELETE("/tasks/:taskID", s.handleDeleteTask)
	}

	s.engine.GET("/ws", gin.WrapF(s.hub.serveWS))
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(email string, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userIDFor(email),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.Secret)
}

func (s *Server) parseToken(raw string) (*sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

// requireSession authenticates the access cookie. A missing or forged cookie
// is 401; an expired one is 440 so the client knows a refresh can save the
// session.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(accessCookie)
		if err != nil {
			fail(c, http.StatusUnauthorized, "not logged in")
			return
		}
		claims, err := s.parseToken(raw)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				fail(c, StatusStaleSession, "session expired")
				return
			}
			fail(c, http.StatusUnauthorized, "invalid session")
			return
		}
		c.Set("userID", claims.Subject)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func (s *Server) setSessionCookies(c *gin.Context, email string) error {
	access, err := s.issueToken(email, s.config.AccessTTL)
	if err != nil {
		return err
	}
	refresh, err := s.issueToken(email, s.config.RefreshTTL)
	if err != nil {
		return err
	}
	c.SetCookie(accessCookie, access, int(s.config.RefreshTTL.Seconds()), "/", "", false, true)
	c.SetCookie(refreshCookie, refresh, int(s.config.RefreshTTL.Seconds()), "/", "", false, true)
	return nil
}

func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" || body.Password == "" {
		fail(c, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := s.setSessionCookies(c, body.Email); err != nil {
		fail(c, http.StatusInternalServerError, "failed to open session")
		return
	}
	ok(c, gin.H{"userId": userIDFor(body.Email), "name": displayNameFor(body.Email)})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie(accessCookie, "", -1, "/", "", false, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", false, true)
	ok(c, nil)
}

// handleRefresh renews the access cookie from the refresh cookie. A dead
// refresh cookie answers 440 as well; the client gives up and logs out.
func (s *Server) handleRefresh(c *gin.Context) {
	raw, err := c.Cookie(refreshCookie)
	if err != nil {
		fail(c, StatusStaleSession, "no refresh token")
		return
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		fail(c, StatusStaleSession, "refresh token expired")
		return
	}
	if err := s.setSessionCookies(c, claims.Email); err != nil {
		fail(c, http.StatusInternalServerError, "failed to refresh session")
		return
	}
	ok(c, nil)
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects := s.state.projectsForUser(c.GetString("userID"))
	if projects == nil {
		projects = []schema.Project{}
	}
	// Legacy shape: this endpoint returns a bare array, not the envelope.
	c.JSON(http.StatusOK, projects)
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		fail(c, http.StatusBadRequest, "project name is required")
		return
	}
	project := s.state.createProject(c.GetString("userID"), c.GetString("email"), body.Name, body.Description)
	ok(c, project)
}

func (s *Server) handleGetProject(c *gin.Context) {
	project, found := s.state.project(c.Param("projectID"))
	if !found {
		fail(c, http.StatusNotFound, "project not found")
		return
	}
	ok(c, project)
}

func (s *Server) handleListSprints(c *gin.Context) {
	ok(c, s.state.sprintsForProject(c.Param("projectID")))
}

func (s *Server) handleCreateSprint(c *gin.Context) {
	projectID := c.Param("projectID")
	if !s.requireEdit(c, projectID) {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		fail(c, http.StatusBadRequest, "sprint name is required")
		return
	}
	ok(c, s.state.createSprint(projectID, body.Name))
}

func (s *Server) handleListColumns(c *gin.Context) {
	ok(c, s.state.columnsForSprint(c.Param("sprintID")))
}

func (s *Server) handleListTasks(c *gin.Context) {
	ok(c, s.state.tasksForSprint(c.Param("sprintID")))
}

// requireEdit answers 403 unless the session user can edit the project.
func (s *Server) requireEdit(c *gin.Context, projectID string) bool {
	role, found := s.state.memberRole(projectID, c.GetString("userID"))
	if !found || !role.CanEdit() {
		fail(c, http.StatusForbidden, "no edit permission")
		return false
	}
	return true
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var draft struct {
		SprintID      string          `json:"sprintId"`
		BoardColumnID string          `json:"boardColumnId"`
		Title         string          `json:"title"`
		Description   string          `json:"description"`
		Priority      schema.Priority `json:"priority"`
		StoryPoints   int             `json:"storyPoints"`
		Labels        []string        `json:"labels"`
	}
	if err := c.ShouldBindJSON(&draft); err != nil || draft.SprintID == "" || draft.Title == "" {
		fail(c, http.StatusBadRequest, "sprintId and title are required")
		return
	}
	projectID, found := s.state.projectForSprint(draft.SprintID)
	if !found {
		fail(c, http.StatusNotFound, "sprint not found")
		return
	}
	if !s.requireEdit(c, projectID) {
		return
	}

	now := time.Now().UTC()
	task := schema.Task{
		ID:            newTaskID(),
		SprintID:      draft.SprintID,
		BoardColumnID: draft.BoardColumnID,
		Title:         draft.Title,
		Description:   draft.Description,
		Priority:      draft.Priority,
		StoryPoints:   draft.StoryPoints,
		Labels:        draft.Labels,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	task.SetDefaults()

	created, err := s.state.createTask(task)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	s.hub.notifyProject(projectID, draft.SprintID, "task created: "+created.Title)
	ok(c, created)
}

func (s *Server) handlePatchTask(c *gin.Context) {
	taskID := c.Param("taskID")
	task, found := s.state.findTask(taskID)
	if !found {
		fail(c, http.StatusNotFound, "task not found")
		return
	}
	projectID, _ := s.state.projectForSprint(task.SprintID)
	if !s.requireEdit(c, projectID) {
		return
	}

	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, "invalid patch")
		return
	}
	updated, err := s.state.patchTask(taskID, patch)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	s.hub.notifyProject(projectID, task.SprintID, "task updated: "+updated.Title)
	ok(c, updated)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	taskID := c.Param("taskID")
	task, found := s.state.findTask(taskID)
	if !found {
		fail(c, http.StatusNotFound, "task not found")
		return
	}
	projectID, _ := s.state.projectForSprint(task.SprintID)
	if !s.requireEdit(c, projectID) {
		return
	}
	s.state.deleteTask(taskID)
	s.hub.notifyProject(projectID, task.SprintID, "task deleted: "+task.Title)
	ok(c, nil)
}

func (s *Server) handleListMessages(c *gin.Context) {
	ok(c, s.state.messagesForProject(c.Param("projectID")))
}

func (s *Server) handleInvite(c *gin.Context) {
	projectID := c.Param("projectID")
	if !s.requireEdit(c, projectID) {
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" {
		fail(c, http.StatusBadRequest, "email is required")
		return
	}
	token := s.state.createInvitation(projectID, body.Email)
	ok(c, gin.H{"token": token})
}

func (s *Server) handleAcceptInvitation(c *gin.Context) {
	if err := s.state.acceptInvitation(c.Param("token"), c.GetString("userID")); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, nil)
}
