package account

import (
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const sessionLocalsKey = "account_session"

// RegisterAccountRoutes wires the account and role administration routes
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) *AccountController {
	controller := NewAccountController(opts...)

	authenticated := controller.RequireSession()
	admin := controller.RequireRole(AdminRoleName)

	app.Post(controller.Routes.Register, controller.Register).
		SetName("account.register")
	app.Get(controller.Routes.ConfirmEmail, controller.ConfirmEmail).
		SetName("account.confirm-email")
	app.Post(controller.Routes.ResendConfirmation, controller.ResendConfirmation).
		SetName("account.resend-confirmation")

	app.Post(controller.Routes.Login, controller.Login).
		SetName("account.login")
	app.Post(controller.Routes.Logout, controller.Logout).
		SetName("account.logout")
	app.Get(controller.Routes.Me, controller.Me, authenticated).
		SetName("account.me")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).
		SetName("account.forgot-password")
	app.Post(controller.Routes.ResetPassword, controller.ResetPassword).
		SetName("account.reset-password")

	if controller.Roles == nil {
		return controller
	}

	app.Get(controller.Routes.Roles, controller.RoleList, authenticated, admin).
		SetName("roles.index")
	app.Post(controller.Routes.Roles, controller.RoleCreate, authenticated, admin).
		SetName("roles.create")
	app.Get(controller.Routes.Roles+"/:id", controller.RoleShow, authenticated, admin).
		SetName("roles.show")
	app.Post(controller.Routes.Roles+"/:id", controller.RoleEdit, authenticated, admin).
		SetName("roles.edit")
	app.Post(controller.Routes.Roles+"/:id/delete", controller.RoleDelete, authenticated, admin).
		SetName("roles.delete")
	app.Post(controller.Routes.Roles+"/:id/members", controller.RoleAssign, authenticated, admin).
		SetName("roles.members.assign")
	app.Post(controller.Routes.Roles+"/:id/members/:identity/delete", controller.RoleUnassign, authenticated, admin).
		SetName("roles.members.unassign")

	return controller
}

type AccountControllerRoutes struct {
	Register           string
	ConfirmEmail       string
	ResendConfirmation string
	Login              string
	Logout             string
	Me                 string
	ForgotPassword     string
	ResetPassword      string
	Roles              string
}

type AccountController struct {
	Debug        bool
	Logger       Logger
	Lifecycle    *Lifecycle
	Roles        *RoleAdmin
	Sessions     SessionManager
	Session      SessionConfig
	Routes       *AccountControllerRoutes
	CookieSecure bool
	now          func() time.Time
}

type AccountControllerOption func(*AccountController) *AccountController

func WithControllerLifecycle(l *Lifecycle) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Lifecycle = l
		return c
	}
}

func WithControllerRoles(r *RoleAdmin) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Roles = r
		return c
	}
}

func WithControllerSessions(s SessionManager, cfg SessionConfig) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Sessions = s
		if cfg != nil {
			c.Session = cfg
		}
		return c
	}
}

func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Debug = debug
		return c
	}
}

// WithControllerSecureCookies sets the Secure flag on session cookies
func WithControllerSecureCookies(secure bool) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.CookieSecure = secure
		return c
	}
}

func WithControllerRoutes(routes AccountControllerRoutes) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if routes.Register != "" {
			c.Routes.Register = routes.Register
		}
		if routes.ConfirmEmail != "" {
			c.Routes.ConfirmEmail = routes.ConfirmEmail
		}
		if routes.ResendConfirmation != "" {
			c.Routes.ResendConfirmation = routes.ResendConfirmation
		}
		if routes.Login != "" {
			c.Routes.Login = routes.Login
		}
		if routes.Logout != "" {
			c.Routes.Logout = routes.Logout
		}
		if routes.Me != "" {
			c.Routes.Me = routes.Me
		}
		if routes.ForgotPassword != "" {
			c.Routes.ForgotPassword = routes.ForgotPassword
		}
		if routes.ResetPassword != "" {
			c.Routes.ResetPassword = routes.ResetPassword
		}
		if routes.Roles != "" {
			c.Routes.Roles = routes.Roles
		}
		return c
	}
}

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger:       defLogger{},
		Session:      DefaultSessionSettings(),
		CookieSecure: true,
		now:          time.Now,
		Routes: &AccountControllerRoutes{
			Register:           "/account/register",
			ConfirmEmail:       "/account/confirm-email",
			ResendConfirmation: "/account/resend-confirmation",
			Login:              "/account/login",
			Logout:             "/account/logout",
			Me:                 "/account/me",
			ForgotPassword:     "/account/forgot-password",
			ResetPassword:      "/account/reset-password",
			Roles:              "/roles",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Lifecycle == nil {
		panic("Missing Lifecycle in account controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionManager in account controller...")
	}

	return c
}

func (a *AccountController) Register(ctx router.Context) error {
	payload := new(RegisterMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, ErrInvalidRequest("failed to parse request body"))
	}

	if a.Debug {
		a.Logger.Debug("account register request", "payload", print.MaybePrettyJSON(map[string]any{
			"username": payload.Username,
			"email":    payload.Email,
		}))
	}

	res, err := a.Lifecycle.Register(ctx.Context(), *payload)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"status":   res.Status,
		"identity": res.Identity,
	})
}

func (a *AccountController) ConfirmEmail(ctx router.Context) error {
	userID := ctx.Query("userId", "")
	token := ctx.Query("token", "")

	if err := a.Lifecycle.ConfirmEmail(ctx.Context(), userID, token); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "confirmed",
	})
}

// EmailRequest carries a single email address
type EmailRequest struct {
	Email string `form:"email" json:"email"`
}

func (a *AccountController) ResendConfirmation(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, ErrInvalidRequest("failed to parse request body"))
	}

	if err := a.Lifecycle.ResendConfirmation(ctx.Context(), payload.Email); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(http.StatusAccepted, map[string]any{
		"status": "confirmation_sent",
	})
}

func (a *AccountController) Login(ctx router.Context) error {
	payload := new(LoginMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, ErrInvalidRequest("failed to parse request body"))
	}

	res, err := a.Lifecycle.Login(ctx.Context(), *payload)
	if err != nil {
		return a.renderError(ctx, err)
	}

	a.setSessionCookie(ctx, res.Session)

	return ctx.JSON(http.StatusOK, map[string]any{
		"identity":   res.Identity,
		"expires_at": res.Session.Session.ExpiresAt,
	})
}

func (a *AccountController) Logout(ctx router.Context) error {
	token := ctx.Cookies(a.Session.GetCookieName())
	if token != "" {
		if err := a.Lifecycle.Logout(ctx.Context(), token); err != nil {
			a.Logger.Warn("logout failed", "error", err)
		}
	}

	a.clearSessionCookie(ctx)

	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "signed_out",
	})
}

func (a *AccountController) Me(ctx router.Context) error {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return a.renderError(ctx, ErrSessionInvalid())
	}

	identity, err := a.Lifecycle.FindIdentity(ctx.Context(), session)
	if err != nil {
		return a.renderError(ctx, err)
	}

	body := map[string]any{
		"identity": identity,
		"session":  session,
	}

	if a.Roles != nil {
		roles, err := a.Roles.RolesOf(ctx.Context(), session.IdentityID)
		if err != nil {
			return a.renderError(ctx, err)
		}
		body["roles"] = roles
	}

	return ctx.JSON(http.StatusOK, body)
}

func (a *AccountController) ForgotPassword(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, ErrInvalidRequest("failed to parse request body"))
	}

	if err := a.Lifecycle.ForgotPassword(ctx.Context(), payload.Email); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(http.StatusAccepted, map[string]any{
		"status": "reset_link_sent",
	})
}

func (a *AccountController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, ErrInvalidRequest("failed to parse request body"))
	}

	if err := a.Lifecycle.ResetPassword(ctx.Context(), *payload); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "password_reset",
	})
}

func (a *AccountController) RoleList(ctx router.Context) error {
	roles, err := a.Roles.List(ctx.Context())
	if err != nil {
		return a.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"roles": roles,
	})
}

func (a *AccountController) RoleShow(ctx router.Context) error {
	details, err := a.Roles.Get(ctx.Context(), ctx.Param("id"))
	if err != nil {
		return a.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, details)
}

func (a *AccountController) RoleCreate(ctx router.Context) error {
	payload := new(RoleMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, ErrInvalidRequest("failed to parse request body"))
	}

	role, err := a.Roles.Create(ctx.Context(), actorFromContext(ctx), *payload)
	if err != nil {
		return a.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, map[string]any{
		"role": role,
	})
}

func (a *AccountController) RoleEdit(ctx router.Context) error {
	payload := new(RoleMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, ErrInvalidRequest("failed to parse request body"))
	}

	role, err := a.Roles.Edit(ctx.Context(), actorFromContext(ctx), ctx.Param("id"), *payload)
	if err != nil {
		return a.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"role": role,
	})
}

func (a *AccountController) RoleDelete(ctx router.Context) error {
	if err := a.Roles.Delete(ctx.Context(), actorFromContext(ctx), ctx.Param("id")); err != nil {
		return a.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "deleted",
	})
}

// MembershipRequest names the identity to add to a role
type MembershipRequest struct {
	IdentityID string `form:"identity_id" json:"identity_id"`
}

func (a *AccountController) RoleAssign(ctx router.Context) error {
	payload := new(MembershipRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, ErrInvalidRequest("failed to parse request body"))
	}

	if err := a.Roles.Assign(ctx.Context(), actorFromContext(ctx), ctx.Param("id"), payload.IdentityID); err != nil {
		return a.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "assigned",
	})
}

func (a *AccountController) RoleUnassign(ctx router.Context) error {
	if err := a.Roles.Unassign(ctx.Context(), actorFromContext(ctx), ctx.Param("id"), ctx.Param("identity")); err != nil {
		return a.renderError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "unassigned",
	})
}

// RequireSession resolves the session cookie and stores the session in the
// request locals. Sliding sessions past half their lifetime are re-issued.
func (a *AccountController) RequireSession() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			token := ctx.Cookies(a.Session.GetCookieName())
			if token == "" {
				return a.renderError(ctx, ErrSessionInvalid())
			}

			session, err := a.Sessions.Resolve(ctx.Context(), token)
			if err != nil {
				a.clearSessionCookie(ctx)
				return a.renderError(ctx, err)
			}

			refreshed, renewed, err := a.Sessions.Refresh(ctx.Context(), session)
			if err != nil {
				a.Logger.Warn("session refresh failed", "session", session.String(), "error", err)
			} else if renewed {
				a.setSessionCookie(ctx, refreshed)
				session = refreshed.Session
			}

			ctx.Locals(sessionLocalsKey, session)
			return next(ctx)
		}
	}
}

// RequireRole rejects sessions whose identity is not in role
func (a *AccountController) RequireRole(role string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session, ok := SessionFromContext(ctx)
			if !ok {
				return a.renderError(ctx, ErrSessionInvalid())
			}

			if a.Roles == nil {
				return a.renderError(ctx, errForbidden(role))
			}

			member, err := a.Roles.IsInRole(ctx.Context(), session.IdentityID, role)
			if err != nil {
				return a.renderError(ctx, err)
			}

			if !member {
				return a.renderError(ctx, errForbidden(role))
			}

			return next(ctx)
		}
	}
}

// SessionFromContext returns the session stored by RequireSession
func SessionFromContext(ctx router.Context) (*Session, bool) {
	session, ok := ctx.Locals(sessionLocalsKey).(*Session)
	return session, ok && session != nil
}

func actorFromContext(ctx router.Context) ActorRef {
	if session, ok := SessionFromContext(ctx); ok {
		return ActorRef{ID: session.IdentityID, Type: "identity"}
	}
	return SystemActor
}

func errForbidden(role string) *goerrors.Error {
	return goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithMetadata(map[string]any{"role": role})
}

func (a *AccountController) setSessionCookie(ctx router.Context, issued *IssuedSession) {
	if issued == nil || issued.Session == nil {
		return
	}
	ctx.Cookie(SessionCookie(a.Session.GetCookieName(), issued, a.CookieSecure))
}

func (a *AccountController) clearSessionCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     a.Session.GetCookieName(),
		Value:    "",
		Path:     "/",
		Expires:  a.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.CookieSecure,
		SameSite: "Lax",
	})
}

// SessionCookie builds the cookie carrying issued. Persistent sessions get
// an explicit expiry, others end with the browser session.
func SessionCookie(name string, issued *IssuedSession, secure bool) *router.Cookie {
	cookie := &router.Cookie{
		Name:     name,
		Value:    issued.Token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   secure,
		SameSite: "Lax",
	}
	if issued.Session != nil && issued.Session.Persistent {
		cookie.Expires = issued.Session.ExpiresAt
	}
	return cookie
}

// ErrorResponse is the JSON body returned for failed operations
type ErrorResponse struct {
	Code              string            `json:"code"`
	Message           string            `json:"message"`
	Fields            map[string]string `json:"fields,omitempty"`
	RetryAfterSeconds int               `json:"retry_after_seconds,omitempty"`
}

// StatusFor maps an error to the HTTP status reported to clients
func StatusFor(err error) int {
	switch Kind(err) {
	case TextCodeInvalidRequest, TextCodeWeakCredential,
		TextCodeTokenExpired, TextCodeTokenPurposeMismatch, TextCodeTokenMalformed:
		return http.StatusBadRequest
	case TextCodeDuplicateEmail, TextCodeDuplicateUsername, TextCodeDuplicateRoleName:
		return http.StatusConflict
	case TextCodeNoSuchAccount, TextCodeUserNotFound, TextCodeRoleNotFound:
		return http.StatusNotFound
	case TextCodeEmailNotConfirmed:
		return http.StatusForbidden
	case TextCodeInvalidPassword, TextCodeSessionInvalid:
		return http.StatusUnauthorized
	case TextCodeLockedOut:
		return http.StatusLocked
	case TextCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

// NewErrorResponse builds the body for err
func NewErrorResponse(err error) ErrorResponse {
	res := ErrorResponse{
		Code:    Kind(err),
		Message: "an unexpected error occurred",
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		res.Message = richErr.Message
		if res.Code == "" {
			res.Code = richErr.TextCode
		}
	}

	if res.Code == "" {
		res.Code = TextCodeServiceUnavailable
		if StatusFor(err) < http.StatusInternalServerError {
			res.Code = "ERROR"
		}
	}

	switch res.Code {
	case TextCodeInvalidRequest, TextCodeWeakCredential, TextCodeDuplicateEmail,
		TextCodeDuplicateUsername, TextCodeDuplicateRoleName:
		res.Fields = FieldErrors(err)
	case TextCodeServiceUnavailable:
		res.Message = "service unavailable, please try again later"
	}

	if remaining, ok := LockoutRemaining(err); ok {
		res.RetryAfterSeconds = int((remaining + time.Second - 1) / time.Second)
	}

	return res
}

func (a *AccountController) renderError(ctx router.Context, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("account request failed", "error", err)
	} else {
		a.Logger.Debug("account request rejected", "kind", Kind(err), "error", err)
	}

	res := NewErrorResponse(err)
	if res.RetryAfterSeconds > 0 {
		ctx.SetHeader("Retry-After", fmt.Sprintf("%d", res.RetryAfterSeconds))
	}

	return ctx.JSON(status, map[string]any{
		"error": res,
	})
}
