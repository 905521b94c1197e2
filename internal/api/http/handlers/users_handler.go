package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// UsersHandler exposes account endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{users: userService}
}

// Register handles POST /users.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("username, email, password required", nil)
	}

	user := &domain.User{
		Username:       strings.ToLower(strings.TrimSpace(req.Username)),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Firstname:      strings.TrimSpace(req.Firstname),
		Lastname:       strings.TrimSpace(req.Lastname),
		MobileNumber:   strings.TrimSpace(req.MobileNumber),
		GraduationYear: req.GraduationYear,
	}
	created, err := h.users.CreateUserLocal(c.UserContext(), user, req.Password)
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(*created)})
}

// Invite handles POST /users/invite. The account has no password.
func (h *UsersHandler) Invite(c *fiber.Ctx) error {
	var req dto.InviteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Username == "" || req.Email == "" {
		return apperrors.NewValidationError("username, email required", nil)
	}

	user := &domain.User{
		Username:     strings.ToLower(strings.TrimSpace(req.Username)),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Firstname:    strings.TrimSpace(req.Firstname),
		Lastname:     strings.TrimSpace(req.Lastname),
		MobileNumber: strings.TrimSpace(req.MobileNumber),
	}
	if req.VerifiedEmail != nil {
		verified := strings.ToLower(strings.TrimSpace(*req.VerifiedEmail))
		user.VerifiedEmail = &verified
	}
	created, err := h.users.CreateUserWithoutPassword(c.UserContext(), user)
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(*created)})
}

// Me handles GET /users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	return c.JSON(fiber.Map{"data": userResponse(*principal.User)})
}

// UpdateMe handles PATCH /users/me.
func (h *UsersHandler) UpdateMe(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ProfileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	if _, err := h.users.UpdateUserByID(c.UserContext(), principal.User.ID, profileChanges(req)); err != nil {
		return mapServiceError(err)
	}
	user, err := h.users.FindUserByID(c.UserContext(), principal.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(*user)})
}

// Get handles GET /users/:id. Non-admin callers see the public profile.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	user, err := h.users.FindUserForClient(c.UserContext(), principal.Trusted(), c.Params("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": userResponse(*user)})
}

// Lookup handles GET /users/lookup?username=&email=.
func (h *UsersHandler) Lookup(c *fiber.Ctx) error {
	filter := repository.UserFilter{
		Username: strings.TrimSpace(c.Query("username")),
		Email:    strings.TrimSpace(c.Query("email")),
	}
	user, err := h.users.FindUserByParams(c.UserContext(), filter)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": userResponse(*user)})
}

// List handles GET /users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	args := service.FilterArgs{
		Username:  c.Query("username"),
		Firstname: c.Query("firstname"),
		Lastname:  c.Query("lastname"),
		Email:     c.Query("email"),
		Contact:   c.Query("contact"),
		Verified:  c.Query("verified"),
	}
	users, err := h.users.FindAllUsersWithFilter(c.UserContext(), principal.Trusted(), args)
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]dto.UserResponse, 0, len(users))
	for _, u := range users {
		items = append(items, userResponse(u))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateWhere handles PATCH /users.
func (h *UsersHandler) UpdateWhere(c *fiber.Ctx) error {
	var req dto.AdminUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	filter := repository.UserFilter{
		ID:       strings.TrimSpace(req.Where.ID),
		Username: strings.TrimSpace(req.Where.Username),
		Email:    strings.TrimSpace(req.Where.Email),
	}
	changes := profileChanges(req.Set.ProfileUpdateRequest)
	changes.VerifiedEmail = req.Set.VerifiedEmail

	n, err := h.users.UpdateUserByParams(c.UserContext(), filter, changes)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": n}})
}

// ClearSessions handles DELETE /users/:id/sessions.
func (h *UsersHandler) ClearSessions(c *fiber.Ctx) error {
	n, err := h.users.ClearSessionsForUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"cleared": n}})
}

func profileChanges(req dto.ProfileUpdateRequest) domain.UserChanges {
	return domain.UserChanges{
		Firstname:      req.Firstname,
		Lastname:       req.Lastname,
		MobileNumber:   req.MobileNumber,
		Photo:          req.Photo,
		GraduationYear: req.GraduationYear,
	}
}

func userResponse(u domain.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Firstname:      u.Firstname,
		Lastname:       u.Lastname,
		MobileNumber:   u.MobileNumber,
		Photo:          u.Photo,
		GraduationYear: u.GraduationYear,
		VerifiedEmail:  u.VerifiedEmail,
		Role:           string(u.Role),
	}
	if !u.CreatedAt.IsZero() {
		created, updated := u.CreatedAt, u.UpdatedAt
		resp.CreatedAt, resp.UpdatedAt = &created, &updated
	}
	return resp
}
