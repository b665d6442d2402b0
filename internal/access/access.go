// Package access maps user profiles to permissions and routes to the
// permission they require. It holds no state; callers evaluate it per request.
package access

import (
	"sort"
	"strings"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

type Permission string

const (
	ManageProducts  Permission = "manage_products"
	ManageStock     Permission = "manage_stock"
	ManageOrders    Permission = "manage_orders"
	ManageCustomers Permission = "manage_customers"
	ViewReports     Permission = "view_reports"
	ManageCashback  Permission = "manage_cashback"
	CloseDailyCash  Permission = "close_daily_cash"

	ViewMenu      Permission = "view_menu"
	CreateOrder   Permission = "create_order"
	ViewMyOrders  Permission = "view_my_orders"
	ManageProfile Permission = "manage_profile"
)

var customerPermissions = []Permission{ViewMenu, CreateOrder, ViewMyOrders, ManageProfile}

var ownerPermissions = append([]Permission{
	ManageProducts,
	ManageStock,
	ManageOrders,
	ManageCustomers,
	ViewReports,
	ManageCashback,
	CloseDailyCash,
}, customerPermissions...)

var routePermissions = map[string]Permission{
	"/products":  ManageProducts,
	"/stock":     ManageStock,
	"/orders":    ManageOrders,
	"/customers": ManageCustomers,
	"/reports":   ViewReports,
	"/cashback":  ManageCashback,
	"/menu":      ViewMenu,
	"/my-orders": ViewMyOrders,
	"/profile":   ManageProfile,
}

// Permissions returns the permission set of profile; nil has none.
func Permissions(profile *domain.UserProfile) []Permission {
	if profile == nil {
		return nil
	}
	if profile.IsOwner {
		return append([]Permission(nil), ownerPermissions...)
	}
	return append([]Permission(nil), customerPermissions...)
}

func HasPermission(profile *domain.UserProfile, permission Permission) bool {
	for _, p := range Permissions(profile) {
		if p == permission {
			return true
		}
	}
	return false
}

// CanAccess reports whether profile may open route. Routes without a
// mapped permission are open to any caller.
func CanAccess(profile *domain.UserProfile, route string) bool {
	required, ok := RequiredPermission(route)
	if !ok {
		return true
	}
	return HasPermission(profile, required)
}

func RequiredPermission(route string) (Permission, bool) {
	p, ok := routePermissions[normalizeRoute(route)]
	return p, ok
}

// Routes lists every mapped route in lexical order.
func Routes() []string {
	routes := make([]string, 0, len(routePermissions))
	for route := range routePermissions {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
	}
	return route
}
