package entity

import (
	"net/url"
	"strings"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
)

// Статусы обработки жалоб.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
)

// administrators — экраны, закрытые для проверяющих жалоб.
var administrators = rbac.NewSet(rbac.RoleAdmin, rbac.RoleSuperAdmin)

// appealsFanOut — жалобы собираются по нарушениям: backend не умеет
// отдавать жалобы без фильтра по offenseId.
var appealsFanOut = FanOut{
	RelatedPath:     "/api/offenses",
	JoinField:       "offenseId",
	DependentPath:   "/api/appeals",
	DependentParam:  "offenseId",
	DependentParams: url.Values{"page": {"1"}, "size": {"50"}},
	IDField:         "appealId",
}

// Catalogue возвращает конфигурации всех экранов консоли.
func Catalogue() []Config {
	myAppeals := appealsFanOut
	myAppeals.UserParam = "userId"

	return []Config{
		// --- Экраны управления ---
		{
			Key: "offenses", Label: "Offenses", Route: "/offenseList", Roles: rbac.ManagerRoles,
			BasePath: "/api/offenses", IDField: "offenseId",
			Fields: offenseFields,
		},
		{
			Key: "fines", Label: "Fines", Route: "/fineList", Roles: rbac.ManagerRoles,
			BasePath: "/api/fines", IDField: "fineId",
			Fields: fineFields,
		},
		{
			Key: "vehicles", Label: "Vehicles", Route: "/vehicleList", Roles: rbac.ManagerRoles,
			BasePath: "/api/vehicles", IDField: "vehicleId",
			Fields:    vehicleFields,
			Transform: normalizePlate,
		},
		{
			Key: "drivers", Label: "Drivers", Route: "/driverList", Roles: rbac.ManagerRoles,
			BasePath: "/api/drivers", IDField: "driverId",
			Fields: []FieldSpec{
				{Name: "driverId", Type: TypeInteger, ReadOnly: true},
				{Name: "name"},
				{Name: "idCardNumber"},
				{Name: "contactNumber"},
				{Name: "driverLicenseNumber"},
				{Name: "currentPoints", Type: TypeInteger},
				{Name: "status"},
				{Name: "allowedVehicleType"},
				{Name: "gender"},
				{Name: "birthdate", Type: TypeDateTime},
				{Name: "firstLicenseDate", Type: TypeDateTime},
				{Name: "expiryDate", Type: TypeDateTime},
				{Name: "address"},
			},
		},
		{
			Key: "appeals", Label: "Appeals", Route: "/appealManagement", Roles: rbac.ManagerRoles,
			BasePath: "/api/appeals", IDField: "appealId",
			Fields: appealFields,
			List:   appealsFanOut.List,
		},
		{
			Key: "deductions", Label: "Deductions", Route: "/deductionManagement", Roles: rbac.ManagerRoles,
			BasePath: "/api/deductions", IDField: "deductionId",
			Fields: []FieldSpec{
				{Name: "deductionId", Type: TypeInteger, ReadOnly: true},
				{Name: "offenseId", Type: TypeInteger},
				{Name: "driverId", Type: TypeInteger},
				{Name: "deductedPoints", Type: TypeInteger},
				{Name: "deductionTime", Type: TypeDateTime},
				{Name: "handler"},
				{Name: "approver"},
				{Name: "status"},
				{Name: "remarks"},
			},
		},
		{
			Key: "payments", Label: "Payment Records", Route: "/paymentRecord", Roles: rbac.ManagerRoles,
			BasePath: "/api/payments", IDField: "paymentId",
			Fields: []FieldSpec{
				{Name: "paymentId", Type: TypeInteger, ReadOnly: true},
				{Name: "fineId", Type: TypeInteger},
				{Name: "paymentNumber"},
				{Name: "paymentAmount", Type: TypeFloat},
				{Name: "paymentMethod"},
				{Name: "paymentTime", Type: TypeDateTime},
				{Name: "paymentStatus"},
				{Name: "payerName"},
				{Name: "payerIdCard"},
				{Name: "transactionId"},
				{Name: "remarks"},
			},
		},
		{
			Key: "offenseTypes", Label: "Offense Types", Route: "/offenseType", Roles: rbac.ManagerRoles,
			BasePath: "/api/offense-types", IDField: "typeId",
			Fields: []FieldSpec{
				{Name: "typeId", Type: TypeInteger, ReadOnly: true},
				{Name: "offenseCode"},
				{Name: "offenseName"},
				{Name: "category"},
				{Name: "standardFineAmount", Type: TypeFloat},
				{Name: "deductedPoints", Type: TypeInteger},
				{Name: "severityLevel"},
				{Name: "status"},
				{Name: "legalBasis"},
				{Name: "description"},
			},
		},
		{
			Key: "progress", Label: "Progress", Route: "/progressManagement", Roles: rbac.ManagerRoles,
			BasePath: "/api/progress", IDField: "id",
			Fields: []FieldSpec{
				{Name: "id", Type: TypeInteger, ReadOnly: true},
				{Name: "title"},
				{Name: "username"},
				{Name: "businessType"},
				{Name: "status"},
				{Name: "submitTime", Type: TypeDateTime},
				{Name: "details"},
			},
		},
		{
			Key: "loginLogs", Label: "Login Logs", Route: "/loginLogPage", Roles: rbac.ManagerRoles,
			BasePath: "/api/logs/login", IDField: "logId",
			Fields: []FieldSpec{
				{Name: "logId", Type: TypeInteger, ReadOnly: true},
				{Name: "username", ReadOnly: true},
				{Name: "loginIp", ReadOnly: true},
				{Name: "loginLocation", ReadOnly: true},
				{Name: "loginResult", ReadOnly: true},
				{Name: "loginTime", Type: TypeDateTime, ReadOnly: true},
				{Name: "browserType", ReadOnly: true},
				{Name: "osVersion", ReadOnly: true},
				{Name: "failureReason", ReadOnly: true},
				{Name: "remarks"},
			},
		},
		{
			Key: "operationLogs", Label: "Operation Logs", Route: "/operationLogPage", Roles: rbac.ManagerRoles,
			BasePath: "/api/logs/operation", IDField: "logId",
			Fields: []FieldSpec{
				{Name: "logId", Type: TypeInteger, ReadOnly: true},
				{Name: "username", ReadOnly: true},
				{Name: "operationType", ReadOnly: true},
				{Name: "operationModule", ReadOnly: true},
				{Name: "operationFunction", ReadOnly: true},
				{Name: "operationResult", ReadOnly: true},
				{Name: "operationTime", Type: TypeDateTime, ReadOnly: true},
				{Name: "requestIp", ReadOnly: true},
				{Name: "operationContent", ReadOnly: true},
				{Name: "errorMessage", ReadOnly: true},
				{Name: "remarks"},
			},
		},
		{
			Key: "users", Label: "Users", Route: "/userManagementPage", Roles: administrators,
			BasePath: "/api/users", IDField: "userId",
			Fields: []FieldSpec{
				{Name: "userId", Type: TypeInteger, ReadOnly: true},
				{Name: "username"},
				{Name: "realName"},
				{Name: "email"},
				{Name: "contactNumber"},
				{Name: "department"},
				{Name: "status"},
				{Name: "lastLoginTime", Type: TypeDateTime, ReadOnly: true},
				{Name: "password"},
				{Name: "remarks"},
			},
			Transform: dropEmptyPassword,
		},
		{
			Key: "roles", Label: "Roles", Route: "/roleManagement", Roles: administrators,
			BasePath: "/api/roles", IDField: "roleId",
			Fields: []FieldSpec{
				{Name: "roleId", Type: TypeInteger, ReadOnly: true},
				{Name: "roleCode"},
				{Name: "roleName"},
				{Name: "roleType"},
				{Name: "dataScope"},
				{Name: "sortOrder", Type: TypeInteger},
				{Name: "status"},
				{Name: "roleDescription"},
			},
			Transform: normalizeRoleCode,
		},
		{
			Key: "permissions", Label: "Permissions", Route: "/permissionManagement", Roles: administrators,
			BasePath: "/api/permissions", IDField: "permissionId",
			Fields: []FieldSpec{
				{Name: "permissionId", Type: TypeInteger, ReadOnly: true},
				{Name: "permissionCode"},
				{Name: "permissionName"},
				{Name: "permissionType"},
				{Name: "parentId", Type: TypeInteger},
				{Name: "apiPath"},
				{Name: "apiMethod"},
				{Name: "isVisible", Type: TypeBoolean},
				{Name: "sortOrder", Type: TypeInteger},
				{Name: "status"},
				{Name: "description"},
			},
		},
		{
			Key: "systemSettings", Label: "System Settings", Route: "/systemSettings", Roles: administrators,
			BasePath: "/api/system/settings", IDField: "settingId",
			Fields: []FieldSpec{
				{Name: "settingId", Type: TypeInteger, ReadOnly: true},
				{Name: "settingKey"},
				{Name: "settingValue"},
				{Name: "settingType"},
				{Name: "category"},
				{Name: "isEditable", Type: TypeBoolean},
				{Name: "isEncrypted", Type: TypeBoolean},
				{Name: "updatedAt", Type: TypeDateTime, ReadOnly: true},
				{Name: "description"},
			},
		},
		{
			Key: "backups", Label: "Backup & Restore", Route: "/backupAndRestore", Roles: administrators,
			BasePath: "/api/system/backup", IDField: "backupId",
			Fields: []FieldSpec{
				{Name: "backupId", Type: TypeInteger, ReadOnly: true},
				{Name: "backupType"},
				{Name: "backupFileName"},
				{Name: "backupFileSize", Type: TypeInteger, ReadOnly: true},
				{Name: "backupTime", Type: TypeDateTime, ReadOnly: true},
				{Name: "backupHandler"},
				{Name: "restoreStatus"},
				{Name: "restoreTime", Type: TypeDateTime, ReadOnly: true},
				{Name: "remarks"},
			},
		},

		// --- Личный кабинет водителя ---
		{
			Key: "myOffenses", Label: "My Offenses", Route: "/userOffenseListPage", Roles: rbac.DriverRoles,
			BasePath: "/api/offenses", IDField: "offenseId",
			Fields: offenseFields,
			List: FanOut{
				RelatedPath:    "/api/drivers",
				UserParam:      "userId",
				JoinField:      "driverId",
				DependentPath:  "/api/offenses",
				DependentParam: "driverId",
				IDField:        "offenseId",
			}.List,
		},
		{
			Key: "myVehicles", Label: "My Vehicles", Route: "/vehicleManagement", Roles: rbac.DriverRoles,
			BasePath: "/api/vehicles", IDField: "vehicleId",
			Fields:    vehicleFields,
			Transform: normalizePlate,
			List: FanOut{
				RelatedPath:    "/api/drivers",
				UserParam:      "userId",
				JoinField:      "driverId",
				DependentPath:  "/api/vehicles",
				DependentParam: "driverId",
				IDField:        "vehicleId",
			}.List,
		},
		{
			Key: "myFines", Label: "My Fines", Route: "/fineInformation", Roles: rbac.DriverRoles,
			BasePath: "/api/fines", IDField: "fineId",
			Fields: fineFields,
			List: FanOut{
				RelatedPath:    "/api/offenses",
				UserParam:      "userId",
				JoinField:      "offenseId",
				DependentPath:  "/api/fines",
				DependentParam: "offenseId",
				IDField:        "fineId",
			}.List,
		},
		{
			Key: "myAppeals", Label: "My Appeals", Route: "/userAppeal", Roles: rbac.DriverRoles,
			BasePath: "/api/appeals", IDField: "appealId",
			Fields:    appealFields,
			List:      myAppeals.List,
			Transform: newAppeal,
		},
	}
}

// DefaultRegistry строит реестр из Catalogue.
func DefaultRegistry() *Registry {
	return MustRegistry(Catalogue()...)
}

// Общие схемы экранов управления и личного кабинета.
var (
	offenseFields = []FieldSpec{
		{Name: "offenseId", Type: TypeInteger, ReadOnly: true},
		{Name: "driverId", Type: TypeInteger},
		{Name: "licensePlate"},
		{Name: "offenseType"},
		{Name: "offenseLocation"},
		{Name: "offenseTime", Type: TypeDateTime},
		{Name: "fineAmount", Type: TypeFloat},
		{Name: "processStatus"},
		{Name: "deductedPoints", Type: TypeInteger},
		{Name: "offenseCode"},
		{Name: "processResult"},
	}

	fineFields = []FieldSpec{
		{Name: "fineId", Type: TypeInteger, ReadOnly: true},
		{Name: "offenseId", Type: TypeInteger},
		{Name: "fineNumber"},
		{Name: "fineAmount", Type: TypeFloat},
		{Name: "lateFee", Type: TypeFloat},
		{Name: "totalAmount", Type: TypeFloat},
		{Name: "paymentStatus"},
		{Name: "paymentDeadline", Type: TypeDateTime},
		{Name: "fineDate", Type: TypeDateTime},
		{Name: "issuingAuthority"},
		{Name: "handler"},
		{Name: "remarks"},
	}

	vehicleFields = []FieldSpec{
		{Name: "vehicleId", Type: TypeInteger, ReadOnly: true},
		{Name: "licensePlate"},
		{Name: "vehicleType"},
		{Name: "brand"},
		{Name: "model"},
		{Name: "ownerName"},
		{Name: "status"},
		{Name: "inspectionExpiryDate", Type: TypeDateTime},
		{Name: "plateColor"},
		{Name: "vehicleColor"},
		{Name: "ownerIdCard"},
		{Name: "ownerContact"},
		{Name: "engineNumber"},
		{Name: "frameNumber"},
		{Name: "firstRegistrationDate", Type: TypeDateTime},
		{Name: "insuranceExpiryDate", Type: TypeDateTime},
		{Name: "ownerAddress"},
	}

	appealFields = []FieldSpec{
		{Name: "appealId", Type: TypeInteger, ReadOnly: true},
		{Name: "offenseId", Type: TypeInteger},
		{Name: "appellantName"},
		{Name: "appealReason"},
		{Name: "appealTime", Type: TypeDateTime},
		{Name: "processStatus"},
		{Name: "appellantContact"},
		{Name: "processResult"},
		{Name: "appellantIdCard"},
		{Name: "acceptanceStatus"},
	}
)

// normalizePlate приводит номерной знак к верхнему регистру без пробелов по краям.
func normalizePlate(rec model.Record) model.Record {
	if plate, ok := rec["licensePlate"].(string); ok {
		rec["licensePlate"] = strings.ToUpper(strings.TrimSpace(plate))
	}
	return rec
}

// normalizeRoleCode приводит код роли к виду, в котором он приходит в токене.
func normalizeRoleCode(rec model.Record) model.Record {
	if code, ok := rec["roleCode"].(string); ok && code != "" {
		rec["roleCode"] = rbac.Normalize(code).String()
	}
	return rec
}

// dropEmptyPassword не отправляет пустой пароль: при update он затёр бы текущий.
func dropEmptyPassword(rec model.Record) model.Record {
	if p, ok := rec["password"]; ok && model.Stringify(p) == "" {
		delete(rec, "password")
	}
	return rec
}

// newAppeal заполняет время подачи и статус новой жалобы.
func newAppeal(rec model.Record) model.Record {
	if !rec.Has("appealTime") {
		rec["appealTime"] = nowLocal().Format(BackendDateTimeLayout)
	}
	if !rec.Has("processStatus") {
		rec["processStatus"] = StatusPending
	}
	return rec
}
