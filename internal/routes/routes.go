// Package routes holds the portal's static route tables and the path
// classifier shared by the route guard and the login redirect logic.
package routes

import (
	"path"
	"strings"

	"github.com/schooldesk/portal/internal/models"
)

// Class is the access class of a request path.
type Class string

const (
	ClassStaticAsset       Class = "static-asset"
	ClassAPI               Class = "api"
	ClassPublic            Class = "public"
	ClassAuthenticatedOnly Class = "authenticated-only"
	ClassRoleGated         Class = "role-gated"
)

const (
	LoginPath      = "/login"
	OnboardingPath = "/onboarding"
	DefaultHome    = "/dashboard"
	APIPrefix      = "/api"
)

// PublicRoutes are served to anyone.
var PublicRoutes = []string{
	"/",
	"/login",
	"/about",
	"/features",
	"/get-started",
	"/solutions",
	"/support",
	"/privacy",
	"/terms",
}

// AuthenticatedOnlyRoutes need a session but no particular role.
var AuthenticatedOnlyRoutes = []string{
	"/onboarding",
	"/dashboard",
}

// AssetPrefixes are internal asset trees served without checks.
var AssetPrefixes = []string{
	"/_next",
	"/images",
}

// WellKnownFiles are root files crawlers and browsers fetch directly.
var WellKnownFiles = map[string]bool{
	"/favicon.ico":          true,
	"/robots.txt":           true,
	"/sitemap.xml":          true,
	"/manifest.webmanifest": true,
}

var staticExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true, "svg": true,
	"ico": true, "txt": true, "xml": true, "json": true, "css": true, "js": true,
	"woff": true, "woff2": true, "ttf": true, "otf": true, "map": true,
}

// RoleDashboards maps a role to the landing page after login.
var RoleDashboards = map[models.Role]string{
	models.RoleAdmin:   "/admin/dashboard",
	models.RoleBursar:  "/bursar/dashboard",
	models.RoleParent:  "/parent/dashboard",
	models.RoleStudent: "/student/dashboard",
	models.RoleTeacher: "/teacher/dashboard",
}

// Classify assigns exactly one class to any path. Precedence is
// static/API, then public, then authenticated-only, then role-gated.
func Classify(p string) Class {
	switch {
	case IsStaticAsset(p):
		return ClassStaticAsset
	case HasPrefix(p, APIPrefix):
		return ClassAPI
	case matchesAny(p, PublicRoutes):
		return ClassPublic
	case matchesAny(p, AuthenticatedOnlyRoutes):
		return ClassAuthenticatedOnly
	default:
		return ClassRoleGated
	}
}

// Canonical resolves dot segments and repeated slashes in p, so a path is
// always classified as the page it actually names. A trailing slash is kept.
func Canonical(p string) string {
	if p == "" {
		return "/"
	}
	clean := path.Clean("/" + p)
	if clean != "/" && strings.HasSuffix(p, "/") {
		clean += "/"
	}
	return clean
}

// IsStaticAsset reports whether p names a file the front-end serves as-is.
func IsStaticAsset(p string) bool {
	if WellKnownFiles[p] {
		return true
	}
	for _, prefix := range AssetPrefixes {
		if HasPrefix(p, prefix) {
			return true
		}
	}

	ext := strings.TrimPrefix(path.Ext(p), ".")
	return ext != "" && staticExtensions[strings.ToLower(ext)]
}

// HasPrefix reports whether p equals route or is a sub-path of it. "/" only
// matches itself.
func HasPrefix(p, route string) bool {
	if p == route {
		return true
	}
	if route == "/" {
		return false
	}
	return strings.HasPrefix(p, route+"/")
}

func matchesAny(p string, list []string) bool {
	for _, route := range list {
		if HasPrefix(p, route) {
			return true
		}
	}
	return false
}

// DashboardFor resolves the landing page for a role. Unknown roles land on
// the generic dashboard.
func DashboardFor(role models.Role) string {
	if dest, ok := RoleDashboards[role]; ok {
		return dest
	}
	return DefaultHome
}

// PostLoginDestination is where a user goes right after signing in.
func PostLoginDestination(user *models.User) string {
	if user == nil {
		return DefaultHome
	}
	if user.IsFirstTimeLogin {
		return OnboardingPath
	}
	return DashboardFor(user.Role)
}
