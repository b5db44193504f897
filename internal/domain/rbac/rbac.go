// Пакет rbac — роли пользователей консоли и сравнение наборов ролей.
// Роли приходят из JWT в произвольном регистре и с префиксом ROLE_,
// внутри приложения используются только нормализованные значения Role.
package rbac

import (
	"slices"
	"strings"
)

// Role — нормализованное имя роли (верхний регистр, без префикса ROLE_).
type Role string

// Известные роли системы.
const (
	RoleUser           Role = "USER"
	RoleAdmin          Role = "ADMIN"
	RoleSuperAdmin     Role = "SUPER_ADMIN"
	RoleAppealReviewer Role = "APPEAL_REVIEWER"
)

// rolePrefix — префикс Spring Security, который backend может добавлять к ролям.
const rolePrefix = "ROLE_"

// knownRoles — роли, о которых знает консоль.
var knownRoles = map[Role]bool{
	RoleUser:           true,
	RoleAdmin:          true,
	RoleSuperAdmin:     true,
	RoleAppealReviewer: true,
}

// Наборы ролей для групп маршрутов.
var (
	// ManagerRoles — роли с доступом к экранам управления.
	ManagerRoles = NewSet(RoleAdmin, RoleSuperAdmin, RoleAppealReviewer)
	// DriverRoles — роли с доступом к личному кабинету водителя.
	DriverRoles = NewSet(RoleUser, RoleAdmin, RoleSuperAdmin)
)

// Normalize приводит сырое имя роли к Role: убирает пробелы,
// переводит в верхний регистр и отрезает префикс ROLE_.
// Пустая строка после нормализации даёт пустую роль.
func Normalize(raw string) Role {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, rolePrefix)
	return Role(name)
}

// IsKnown проверяет, является ли роль одной из ролей системы.
func (r Role) IsKnown() bool {
	return knownRoles[r]
}

// String возвращает имя роли.
func (r Role) String() string {
	return string(r)
}

// Set — упорядоченный набор ролей без повторов.
// Порядок совпадает с порядком добавления (важен для выбора основной роли).
type Set struct {
	roles []Role
}

// NewSet создаёт набор из уже нормализованных ролей.
// Пустые роли и повторы отбрасываются.
func NewSet(roles ...Role) Set {
	var s Set
	for _, r := range roles {
		s.add(r)
	}
	return s
}

// ParseSet нормализует сырые имена ролей и собирает из них набор.
func ParseSet(raw ...string) Set {
	var s Set
	for _, name := range raw {
		s.add(Normalize(name))
	}
	return s
}

// ParseCSV разбирает строку ролей, разделённых запятыми.
func ParseCSV(raw string) Set {
	if strings.TrimSpace(raw) == "" {
		return Set{}
	}
	return ParseSet(strings.Split(raw, ",")...)
}

func (s *Set) add(r Role) {
	if r == "" || slices.Contains(s.roles, r) {
		return
	}
	s.roles = append(s.roles, r)
}

// Empty возвращает true, если набор пуст.
func (s Set) Empty() bool {
	return len(s.roles) == 0
}

// Len возвращает количество ролей.
func (s Set) Len() int {
	return len(s.roles)
}

// Contains проверяет наличие роли в наборе.
func (s Set) Contains(r Role) bool {
	return slices.Contains(s.roles, r)
}

// Intersects возвращает true, если у наборов есть общая роль.
func (s Set) Intersects(other Set) bool {
	for _, r := range s.roles {
		if other.Contains(r) {
			return true
		}
	}
	return false
}

// Equal сравнивает наборы без учёта порядка.
func (s Set) Equal(other Set) bool {
	if len(s.roles) != len(other.roles) {
		return false
	}
	for _, r := range s.roles {
		if !other.Contains(r) {
			return false
		}
	}
	return true
}

// First возвращает первую роль набора или fallback, если набор пуст.
func (s Set) First(fallback Role) Role {
	if len(s.roles) == 0 {
		return fallback
	}
	return s.roles[0]
}

// Roles возвращает копию ролей в порядке добавления.
func (s Set) Roles() []Role {
	return slices.Clone(s.roles)
}

// Strings возвращает имена ролей.
func (s Set) Strings() []string {
	out := make([]string, len(s.roles))
	for i, r := range s.roles {
		out[i] = string(r)
	}
	return out
}

// String возвращает роли через запятую (формат хранения userRole-подобных значений).
func (s Set) String() string {
	return strings.Join(s.Strings(), ",")
}

// IsManager проверяет, даёт ли набор доступ к экранам управления.
func (s Set) IsManager() bool {
	return s.Intersects(ManagerRoles)
}
