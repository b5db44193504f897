// Пакет guard — проверка доступа к экранам консоли.
// Экран разрешён, если сессия аутентифицирована и (набор требуемых ролей
// пуст или пересекается с ролями сессии). Иначе — переход на /login
// с сохранением запрошенного пути для возврата после входа.
package guard

import (
	"net/url"
	"sort"
	"strings"

	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
	"github.com/bigkaa/trafficadmin/internal/entity"
	"github.com/bigkaa/trafficadmin/internal/session"
)

// Пути навигации.
const (
	LoginPath          = "/login"
	ManagerLandingPath = "/dashboard"
	DriverLandingPath  = "/userDashboard"
	RedirectParam      = "from"
)

// Reason — причина отказа.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
	ReasonUnknownRoute    Reason = "unknown_route"
)

// Decision — результат проверки перехода.
type Decision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
	Reason   Reason `json:"reason,omitempty"`
}

// Allowed — основное правило доступа.
func Allowed(required rbac.Set, sess *session.Session) bool {
	if !sess.Authenticated() {
		return false
	}
	return required.Empty() || required.Intersects(sess.EffectiveRoles())
}

// Decide проверяет доступ к экрану с набором ролей required.
// Отказ по любой причине ведёт на /login с параметром from.
func Decide(required rbac.Set, sess *session.Session, requested string) Decision {
	if Allowed(required, sess) {
		return Decision{Allow: true}
	}
	reason := ReasonForbidden
	if !sess.Authenticated() {
		reason = ReasonUnauthenticated
	}
	return Decision{Redirect: LoginRedirect(requested), Reason: reason}
}

// LoginRedirect строит путь входа с возвратом на requested.
func LoginRedirect(requested string) string {
	if !isLocalPath(requested) || requested == LoginPath {
		return LoginPath
	}
	return LoginPath + "?" + RedirectParam + "=" + url.QueryEscape(requested)
}

// isLocalPath отсекает внешние адреса в параметре возврата.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}

// Table — таблица маршрутов: путь → требуемые роли.
type Table struct {
	exact    map[string]rbac.Set
	prefixes []prefixRoute
}

// prefixRoute — маршрут с параметром в конце (/progressDetailPage/:id).
type prefixRoute struct {
	prefix string
	roles  rbac.Set
}

// anyAuthenticated — маршрут для любой аутентифицированной сессии.
var anyAuthenticated = rbac.Set{}

// managerPages — экраны управления без собственной сущности.
var managerPages = []string{
	ManagerLandingPath,
	"/trafficViolationScreen",
	"/managerPersonalPage",
	"/managerSetting",
	"/managerBusinessProcessing",
	"/logManagement",
	"/systemLogPage",
}

// driverPages — экраны личного кабинета и общие сервисы водителя.
var driverPages = []string{
	DriverLandingPath,
	"/businessProgress",
	"/onlineProcessingProgress",
	"/onlineProcessing",
	"/personalMain",
	"/userSetting",
	"/consultation",
	"/aiChat",
	"/map",
	"/mainScan",
	"/accidentEvidencePage",
	"/accidentProgressPage",
	"/accidentQuickGuidePage",
	"/accidentVideoQuickPage",
	"/finePaymentNoticePage",
	"/latestTrafficViolationNewsPage",
}

// sharedPages — настройки, доступные любой роли.
var sharedPages = []string{
	"/changeThemes",
	"/accountAndSecurity",
	"/changePassword",
	"/deleteAccount",
}

// NewTable строит таблицу маршрутов: экраны сущностей из реестра
// плюс экраны без сущностей.
func NewTable(reg *entity.Registry) *Table {
	t := &Table{exact: make(map[string]rbac.Set)}
	for _, p := range managerPages {
		t.exact[p] = rbac.ManagerRoles
	}
	for _, p := range driverPages {
		t.exact[p] = rbac.DriverRoles
	}
	for _, p := range sharedPages {
		t.exact[p] = anyAuthenticated
	}
	if reg != nil {
		for route, roles := range reg.Routes() {
			t.exact[route] = roles
		}
	}
	t.prefixes = []prefixRoute{
		{prefix: "/progressDetailPage/", roles: rbac.ManagerRoles},
	}
	return t
}

// Lookup возвращает роли маршрута. Query и завершающий слеш игнорируются.
func (t *Table) Lookup(path string) (rbac.Set, bool) {
	path = cleanPath(path)
	if roles, ok := t.exact[path]; ok {
		return roles, true
	}
	for _, p := range t.prefixes {
		if strings.HasPrefix(path, p.prefix) && len(path) > len(p.prefix) &&
			!strings.Contains(path[len(p.prefix):], "/") {
			return p.roles, true
		}
	}
	return rbac.Set{}, false
}

// Resolve решает, куда ведёт переход на path:
//   - /login для активной сессии ведёт на стартовый экран;
//   - корень и неизвестные пути ведут на /login;
//   - известные пути проверяются по ролям.
func (t *Table) Resolve(path string, sess *session.Session) Decision {
	clean := cleanPath(path)
	if clean == LoginPath {
		if sess.Authenticated() {
			return Decision{Redirect: t.Landing("", sess)}
		}
		return Decision{Allow: true}
	}

	required, ok := t.Lookup(clean)
	if !ok {
		return Decision{Redirect: LoginPath, Reason: ReasonUnknownRoute}
	}
	return Decide(required, sess, path)
}

// Landing выбирает экран после входа: запрошенный ранее путь, если он
// доступен сессии, иначе /dashboard для ролей управления и /userDashboard
// для остальных.
func (t *Table) Landing(from string, sess *session.Session) string {
	if isLocalPath(from) && cleanPath(from) != LoginPath {
		if required, ok := t.Lookup(from); ok && Allowed(required, sess) {
			return from
		}
	}
	if sess.EffectiveRoles().IsManager() {
		return ManagerLandingPath
	}
	return DriverLandingPath
}

// Screen — экран навигации.
type Screen struct {
	Path  string   `json:"path"`
	Roles []string `json:"roles,omitempty"`
}

// Screens возвращает экраны, доступные сессии, отсортированные по пути.
func (t *Table) Screens(sess *session.Session) []Screen {
	var out []Screen
	for path, roles := range t.exact {
		if Allowed(roles, sess) {
			out = append(out, Screen{Path: path, Roles: roles.Strings()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// cleanPath убирает query, fragment и завершающий слеш.
func cleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
