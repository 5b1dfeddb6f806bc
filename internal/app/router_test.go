package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-auth/sentra/internal/app"
	"github.com/sentra-auth/sentra/internal/auth"
	"github.com/sentra-auth/sentra/internal/rbac"
	"github.com/sentra-auth/sentra/internal/shared"
	"github.com/sentra-auth/sentra/internal/users"
)

// fixture backs both the credential store and the rbac repository with the
// same in-memory state, so a role mutation through one surface is visible
// through the other, as it is with the real database.
type fixture struct {
	principals     map[int64]*users.Principal
	principalRoles map[int64][]string
	roles          map[string]rbac.Role
	rolePerms      map[string][]string
	perms          map[string]rbac.Permission
	nextID         int64
	nextRoleID     int64
	nextPermID     int64
}

func newFixture() *fixture {
	return &fixture{
		principals:     make(map[int64]*users.Principal),
		principalRoles: make(map[int64][]string),
		roles:          make(map[string]rbac.Role),
		rolePerms:      make(map[string][]string),
		perms:          make(map[string]rbac.Permission),
		nextID:         1,
		nextRoleID:     1,
		nextPermID:     1,
	}
}

func (f *fixture) roleSet(id int64) []rbac.Role {
	names := f.principalRoles[id]
	sort.Strings(names)
	out := make([]rbac.Role, 0, len(names))
	for _, name := range names {
		out = append(out, f.roles[name])
	}
	return out
}

func (f *fixture) withRoles(p *users.Principal) *users.Principal {
	copied := *p
	copied.Roles = f.roleSet(p.ID)
	return &copied
}

// --- users.Store ---

func (f *fixture) FindByName(_ context.Context, name string) (*users.Principal, error) {
	for _, p := range f.principals {
		if p.Name == name {
			return f.withRoles(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fixture) FindByContact(_ context.Context, contact string) (*users.Principal, error) {
	contact = strings.ToLower(strings.TrimSpace(contact))
	for _, p := range f.principals {
		if p.Contact == contact {
			return f.withRoles(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fixture) FindByID(_ context.Context, id int64, _ bool) (*users.Principal, error) {
	p, ok := f.principals[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return f.withRoles(p), nil
}

func (f *fixture) Create(_ context.Context, name, contact, digest string) (*users.Principal, error) {
	contact = strings.ToLower(strings.TrimSpace(contact))
	for _, p := range f.principals {
		if p.Contact == contact {
			return nil, shared.ErrDuplicateContact
		}
	}
	p := &users.Principal{
		ID:               f.nextID,
		Name:             name,
		Contact:          contact,
		CredentialDigest: digest,
		Active:           true,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	f.principals[p.ID] = p
	f.nextID++
	return f.withRoles(p), nil
}

func (f *fixture) List(_ context.Context) ([]users.Principal, error) {
	out := make([]users.Principal, 0, len(f.principals))
	for id := int64(1); id < f.nextID; id++ {
		if p, ok := f.principals[id]; ok {
			out = append(out, *f.withRoles(p))
		}
	}
	return out, nil
}

func (f *fixture) Update(_ context.Context, id int64, fields users.UpdateFields) (*users.Principal, error) {
	p, ok := f.principals[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if fields.Name != nil {
		p.Name = *fields.Name
	}
	if fields.Contact != nil {
		p.Contact = strings.ToLower(strings.TrimSpace(*fields.Contact))
	}
	if fields.CredentialDigest != nil {
		p.CredentialDigest = *fields.CredentialDigest
	}
	if fields.Active != nil {
		p.Active = *fields.Active
	}
	return f.withRoles(p), nil
}

func (f *fixture) ReplaceRoles(_ context.Context, id int64, roleNames []string) error {
	if _, ok := f.principals[id]; !ok {
		return shared.ErrNotFound
	}
	var resolved []string
	for _, name := range roleNames {
		if _, ok := f.roles[name]; ok {
			resolved = append(resolved, name)
		}
	}
	f.principalRoles[id] = resolved
	return nil
}

func (f *fixture) AddRole(_ context.Context, principalID, roleID int64) error {
	for name, role := range f.roles {
		if role.ID != roleID {
			continue
		}
		for _, held := range f.principalRoles[principalID] {
			if held == name {
				return nil
			}
		}
		f.principalRoles[principalID] = append(f.principalRoles[principalID], name)
	}
	return nil
}

func (f *fixture) Delete(_ context.Context, id int64) error {
	if _, ok := f.principals[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.principals, id)
	delete(f.principalRoles, id)
	return nil
}

// --- rbac.Repository ---

func (f *fixture) ListRoles(context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(f.roles))
	for _, r := range f.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fixture) ListPermissions(context.Context) ([]rbac.Permission, error) {
	out := make([]rbac.Permission, 0, len(f.perms))
	for _, p := range f.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fixture) EnsureRole(_ context.Context, name, description string) (rbac.Role, error) {
	if r, ok := f.roles[name]; ok {
		return r, nil
	}
	r := rbac.Role{ID: f.nextRoleID, Name: name, Description: description}
	f.roles[name] = r
	f.nextRoleID++
	return r, nil
}

func (f *fixture) EnsurePermission(_ context.Context, name, description string) (rbac.Permission, error) {
	if p, ok := f.perms[name]; ok {
		return p, nil
	}
	p := rbac.Permission{ID: f.nextPermID, Name: name, Description: description}
	f.perms[name] = p
	f.nextPermID++
	return p, nil
}

func (f *fixture) SetRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	for name, role := range f.roles {
		if role.ID != roleID {
			continue
		}
		var permNames []string
		for _, permID := range permissionIDs {
			for _, p := range f.perms {
				if p.ID == permID {
					permNames = append(permNames, p.Name)
				}
			}
		}
		f.rolePerms[name] = permNames
		return nil
	}
	return shared.ErrNotFound
}

func (f *fixture) AssignRole(ctx context.Context, principalID, roleID int64) error {
	return f.AddRole(ctx, principalID, roleID)
}

func (f *fixture) PrincipalRoleNames(_ context.Context, principalID int64) ([]string, error) {
	if _, ok := f.principals[principalID]; !ok {
		return nil, shared.ErrNotFound
	}
	return append([]string(nil), f.principalRoles[principalID]...), nil
}

func (f *fixture) PrincipalPermissionNames(_ context.Context, principalID int64) ([]string, error) {
	if _, ok := f.principals[principalID]; !ok {
		return nil, shared.ErrNotFound
	}
	seen := make(map[string]struct{})
	var out []string
	for _, roleName := range f.principalRoles[principalID] {
		for _, permName := range f.rolePerms[roleName] {
			if _, dup := seen[permName]; !dup {
				seen[permName] = struct{}{}
				out = append(out, permName)
			}
		}
	}
	return out, nil
}

var (
	_ users.Store     = (*fixture)(nil)
	_ rbac.Repository = (*fixture)(nil)
)

type env struct {
	fixture *fixture
	router  http.Handler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	f := newFixture()
	cfg := &app.Config{AppEnv: "test"}
	logger := testLogger()

	rbacService := rbac.NewService(f, nil, nil)
	require.NoError(t, rbacService.Seed(context.Background()))
	rbacMW := rbac.Middleware{Service: rbacService}

	usersService := users.NewService(f, rbacService)

	codec := auth.NewTokenCodec("router-test-key", time.Hour)
	tokenMW := auth.Middleware{Codec: codec}
	authService := auth.NewService(f, codec)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  auth.NewHandler(logger, authService, tokenMW, rbacMW),
		UsersHandler: users.NewHandler(logger, usersService, rbacMW),
		RBACHandler:  rbac.NewHandler(logger, rbacService, rbacMW),
		TokenMW:      tokenMW,
	})
	return &env{fixture: f, router: router}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}

func (e *env) register(t *testing.T, name, contact, secret, role string) {
	t.Helper()
	res := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "contact": contact, "secret": secret, "role": role,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
}

func (e *env) login(t *testing.T, contact, secret string) string {
	t.Helper()
	res := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"contact": contact, "secret": secret,
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRegisterLoginProfileFlow(t *testing.T) {
	e := newEnv(t)
	e.register(t, "gustavo", "a@x.com", "Sx1*", "Client")
	token := e.login(t, "a@x.com", "Sx1*")

	res := e.do(t, http.MethodGet, "/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, res.Code)

	var summary users.Summary
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &summary))
	assert.Equal(t, "gustavo", summary.Name)
	assert.Equal(t, []string{"Client"}, summary.Roles)
	assert.NotContains(t, res.Body.String(), "digest")
}

func TestLoginWrongSecretUniformMessage(t *testing.T) {
	e := newEnv(t)
	e.register(t, "gustavo", "a@x.com", "Sx1*", "")

	res := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"contact": "a@x.com", "secret": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), "invalid credentials")
	assert.NotContains(t, res.Body.String(), "wrong")
}

func TestProtectedRouteTokenHandling(t *testing.T) {
	e := newEnv(t)
	e.register(t, "gustavo", "a@x.com", "Sx1*", "")

	res := e.do(t, http.MethodGet, "/auth/profile", "", nil)
	assert.Equal(t, http.StatusForbidden, res.Code, "absent token is a 403-class rejection")

	res = e.do(t, http.MethodGet, "/auth/profile", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code, "invalid token is a 401-class rejection")
}

func TestListPrincipalsPermissionScenario(t *testing.T) {
	e := newEnv(t)
	e.register(t, "clara", "client@x.com", "passw", "Client")
	e.register(t, "emil", "employee@x.com", "passw", "Employee")

	clientToken := e.login(t, "client@x.com", "passw")
	employeeToken := e.login(t, "employee@x.com", "passw")

	res := e.do(t, http.MethodGet, "/users", clientToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code, "client lacks users.list")

	res = e.do(t, http.MethodGet, "/users", employeeToken, nil)
	require.Equal(t, http.StatusOK, res.Code)

	var summaries []users.Summary
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &summaries))
	assert.Len(t, summaries, 2)
	assert.NotContains(t, res.Body.String(), "digest")
	assert.NotContains(t, res.Body.String(), "passw")
}

func TestRoleRevocationAppliesOnNextRequest(t *testing.T) {
	e := newEnv(t)
	e.register(t, "emil", "employee@x.com", "passw", "Employee")
	token := e.login(t, "employee@x.com", "passw")

	res := e.do(t, http.MethodGet, "/users", token, nil)
	require.Equal(t, http.StatusOK, res.Code)

	// Replace the role set while the token is still live.
	require.NoError(t, e.fixture.ReplaceRoles(context.Background(), 1, []string{"Client"}))

	res = e.do(t, http.MethodGet, "/users", token, nil)
	assert.Equal(t, http.StatusForbidden, res.Code, "stale token claims must not help")
}

func TestAdminRouteRequiresAdministratorRole(t *testing.T) {
	e := newEnv(t)
	e.register(t, "root", "root@x.com", "passw", "Administrator")
	e.register(t, "clara", "client@x.com", "passw", "Client")

	adminToken := e.login(t, "root@x.com", "passw")
	clientToken := e.login(t, "client@x.com", "passw")

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/auth/admin", adminToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/auth/admin", clientToken, nil).Code)
}

func TestUpdateAndDeletePrincipalEndpoints(t *testing.T) {
	e := newEnv(t)
	e.register(t, "root", "root@x.com", "passw", "Administrator")
	e.register(t, "clara", "client@x.com", "passw", "Client")
	adminToken := e.login(t, "root@x.com", "passw")

	res := e.do(t, http.MethodPut, "/users/2", adminToken, map[string]any{
		"name":  "clara m",
		"roles": []string{"Employee", "NoSuchRole"},
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var summary users.Summary
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &summary))
	assert.Equal(t, "clara m", summary.Name)
	assert.Equal(t, []string{"Employee"}, summary.Roles)

	res = e.do(t, http.MethodPut, "/users/99", adminToken, map[string]any{"name": "nobody"})
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = e.do(t, http.MethodDelete, "/users/2", adminToken, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = e.do(t, http.MethodDelete, "/users/2", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestDeletedPrincipalTokenDenied(t *testing.T) {
	e := newEnv(t)
	e.register(t, "root", "root@x.com", "passw", "Administrator")
	e.register(t, "clara", "client@x.com", "passw", "Client")

	adminToken := e.login(t, "root@x.com", "passw")
	claraToken := e.login(t, "client@x.com", "passw")

	res := e.do(t, http.MethodDelete, "/users/2", adminToken, nil)
	require.Equal(t, http.StatusNoContent, res.Code)

	res = e.do(t, http.MethodGet, "/auth/profile", claraToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Code, "token for a deleted principal resolves nothing")
}

func TestDuplicateContactRejected(t *testing.T) {
	e := newEnv(t)
	e.register(t, "first", "a@x.com", "pass1", "")

	res := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "second", "contact": "a@x.com", "secret": "pass2",
	})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Len(t, e.fixture.principals, 1)
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)

	res := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "gustavo", "contact": "not-an-email", "secret": "passw",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "ab", "contact": "a@x.com", "secret": "passw",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRolesAndPermissionsReadSurface(t *testing.T) {
	e := newEnv(t)
	e.register(t, "root", "root@x.com", "passw", "Administrator")
	e.register(t, "clara", "client@x.com", "passw", "Client")
	adminToken := e.login(t, "root@x.com", "passw")
	clientToken := e.login(t, "client@x.com", "passw")

	res := e.do(t, http.MethodGet, "/roles", adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Administrator")

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/roles", clientToken, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/permissions", adminToken, nil).Code)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	f := newFixture()
	rbacService := rbac.NewService(f, nil, nil)
	cfg := &app.Config{
		AdminName:    "admin",
		AdminContact: "admin@sentra.local",
		AdminSecret:  "bootpw",
	}

	require.NoError(t, app.Bootstrap(context.Background(), testLogger(), cfg, rbacService, f))
	require.NoError(t, app.Bootstrap(context.Background(), testLogger(), cfg, rbacService, f))

	assert.Len(t, f.principals, 1)
	admin, err := f.FindByContact(context.Background(), "admin@sentra.local")
	require.NoError(t, err)
	assert.Equal(t, []string{"Administrator"}, admin.RoleNames())

	roles, err := f.ListRoles(context.Background())
	require.NoError(t, err)
	assert.Len(t, roles, 3)
}

func TestBootstrapWithoutAdminSecret(t *testing.T) {
	f := newFixture()
	rbacService := rbac.NewService(f, nil, nil)
	cfg := &app.Config{AdminContact: "admin@sentra.local"}

	require.NoError(t, app.Bootstrap(context.Background(), testLogger(), cfg, rbacService, f))
	assert.Empty(t, f.principals)
}

