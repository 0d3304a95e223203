package routes

import (
	"math/rand"
	"testing"

	"github.com/schooldesk/portal/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Class
	}{
		// static assets
		{"/favicon.ico", ClassStaticAsset},
		{"/robots.txt", ClassStaticAsset},
		{"/manifest.webmanifest", ClassStaticAsset},
		{"/_next/static/chunks/main.js", ClassStaticAsset},
		{"/_next", ClassStaticAsset},
		{"/images/a.png", ClassStaticAsset},
		{"/images/logo", ClassStaticAsset},
		{"/admin/report.CSS", ClassStaticAsset},
		{"/fonts/inter.woff2", ClassStaticAsset},
		// static wins over api
		{"/api/schema.json", ClassStaticAsset},
		// api
		{"/api", ClassAPI},
		{"/api/anything", ClassAPI},
		{"/api/auth/login", ClassAPI},
		// public
		{"/", ClassPublic},
		{"/login", ClassPublic},
		{"/about", ClassPublic},
		{"/terms/sub", ClassPublic},
		{"/get-started/step-2", ClassPublic},
		// authenticated-only
		{"/onboarding", ClassAuthenticatedOnly},
		{"/onboarding/school", ClassAuthenticatedOnly},
		{"/dashboard", ClassAuthenticatedOnly},
		// role-gated default
		{"/admin/dashboard", ClassRoleGated},
		{"/aboutus", ClassRoleGated},
		{"/apiary", ClassRoleGated},
		{"/imagesx/a", ClassRoleGated},
		{"/dashboards", ClassRoleGated},
		{"", ClassRoleGated},
		{"/teacher/classes/12", ClassRoleGated},
		{"/version.1", ClassRoleGated},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path))
		})
	}
}

func TestClassify_Total(t *testing.T) {
	valid := map[Class]bool{
		ClassStaticAsset: true, ClassAPI: true, ClassPublic: true,
		ClassAuthenticatedOnly: true, ClassRoleGated: true,
	}
	alphabet := []byte("/._-apinegsmodtbrhjx0123456789?%")
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic fuzz input

	for i := 0; i < 5000; i++ {
		b := make([]byte, rng.Intn(24))
		for j := range b {
			b[j] = alphabet[rng.Intn(len(alphabet))]
		}
		got := Classify(string(b))
		assert.True(t, valid[got], "path %q classified as %q", string(b), got)
	}
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("/about", "/about"))
	assert.True(t, HasPrefix("/about/team", "/about"))
	assert.False(t, HasPrefix("/aboutus", "/about"))
	assert.True(t, HasPrefix("/", "/"))
	assert.False(t, HasPrefix("/anything", "/"))
}

func TestDashboardFor(t *testing.T) {
	assert.Equal(t, "/admin/dashboard", DashboardFor(models.RoleAdmin))
	assert.Equal(t, "/bursar/dashboard", DashboardFor(models.RoleBursar))
	assert.Equal(t, "/parent/dashboard", DashboardFor(models.RoleParent))
	assert.Equal(t, "/student/dashboard", DashboardFor(models.RoleStudent))
	assert.Equal(t, "/teacher/dashboard", DashboardFor(models.RoleTeacher))
	assert.Equal(t, "/dashboard", DashboardFor("janitor"))
}

func TestPostLoginDestination(t *testing.T) {
	assert.Equal(t, "/onboarding", PostLoginDestination(&models.User{Role: models.RoleAdmin, IsFirstTimeLogin: true}))
	assert.Equal(t, "/teacher/dashboard", PostLoginDestination(&models.User{Role: models.RoleTeacher}))
	assert.Equal(t, "/dashboard", PostLoginDestination(nil))
}

func TestCanonical(t *testing.T) {
	tests := map[string]string{
		"":                           "/",
		"/":                          "/",
		"/about":                     "/about",
		"/about/":                    "/about/",
		"/about/../admin/dashboard":  "/admin/dashboard",
		"/images/../admin/dashboard": "/admin/dashboard",
		"//admin":                    "/admin",
		"/a/./b//c":                  "/a/b/c",
		"/..":                        "/",
		"/../":                       "/",
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Canonical(in))
		})
	}
}
