package entity

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
)

// offenseExample — конфигурация из примера с нарушениями.
func offenseExample(t *testing.T) *Config {
	t.Helper()
	reg, err := NewRegistry(Config{
		Key:      "offenses",
		BasePath: "/api/offenses",
		IDField:  "offenseId",
		Fields: []FieldSpec{
			{Name: "offenseId"},
			{Name: "driverId"},
			{Name: "processStatus"},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	cfg, _ := reg.Get("offenses")
	return cfg
}

func TestFilter_OffenseExample(t *testing.T) {
	cfg := offenseExample(t)
	rows := []model.Record{{"offenseId": json.Number("1"), "driverId": json.Number("9"), "processStatus": "Pending"}}

	if got := Filter(rows, cfg.Fields, "pend"); len(got) != 1 {
		t.Errorf("поиск \"pend\": %d записей, ожидалась 1", len(got))
	}
	if got := Filter(rows, cfg.Fields, "zzz"); len(got) != 0 {
		t.Errorf("поиск \"zzz\": %d записей, ожидалось 0", len(got))
	}
}

func TestFilter(t *testing.T) {
	fields := []FieldSpec{{Name: "licensePlate"}, {Name: "ownerName"}, {Name: "offenseTime", Type: TypeDateTime}}
	rows := []model.Record{
		{"licensePlate": "ABC-123", "ownerName": "Ivanov", "offenseTime": "2024-05-01T10:30:00"},
		{"licensePlate": "XYZ-999", "ownerName": "Петров", "secret": "abc"},
		{"licensePlate": "KLM-555", "ownerName": nil},
	}

	tests := []struct {
		name string
		term string
		want int
	}{
		{name: "пустой запрос", term: "", want: 3},
		{name: "пробелы", term: "   \t", want: 3},
		{name: "без учёта регистра", term: "abc", want: 1},
		{name: "верхний регистр запроса", term: "IVANOV", want: 1},
		{name: "кириллица", term: "ПЕТР", want: 1},
		{name: "пробелы вокруг запроса", term: "  xyz ", want: 1},
		{name: "поле вне схемы не ищется", term: "secret", want: 0},
		{name: "по отображаемой дате", term: "2024-05-01 10:30", want: 1},
		{name: "общая подстрока", term: "-", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filter(rows, fields, tt.term); len(got) != tt.want {
				t.Errorf("Filter(%q) вернул %d записей, ожидалось %d", tt.term, len(got), tt.want)
			}
		})
	}
}

func TestRegistry_Validation(t *testing.T) {
	valid := func() Config {
		return Config{Key: "k", BasePath: "/api/k", IDField: "id", Fields: []FieldSpec{{Name: "id"}}}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "пустой ключ", mutate: func(c *Config) { c.Key = " " }},
		{name: "путь без слеша", mutate: func(c *Config) { c.BasePath = "api/k" }},
		{name: "нет полей", mutate: func(c *Config) { c.Fields = nil }},
		{name: "идентификатор не объявлен", mutate: func(c *Config) { c.IDField = "uuid" }},
		{name: "повтор поля", mutate: func(c *Config) { c.Fields = append(c.Fields, FieldSpec{Name: "id"}) }},
		{name: "неизвестный тип", mutate: func(c *Config) { c.Fields[0].Type = "money" }},
		{name: "неизвестная роль", mutate: func(c *Config) { c.Roles = rbac.ParseSet("AUDITOR") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if _, err := NewRegistry(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ожидалась ErrInvalidConfig, получено %v", err)
			}
		})
	}

	t.Run("повтор ключа", func(t *testing.T) {
		if _, err := NewRegistry(valid(), valid()); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ожидалась ErrInvalidConfig, получено %v", err)
		}
	})
	t.Run("повтор маршрута", func(t *testing.T) {
		a, b := valid(), valid()
		b.Key = "other"
		a.Route, b.Route = "/same", "/same"
		if _, err := NewRegistry(a, b); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ожидалась ErrInvalidConfig, получено %v", err)
		}
	})
}

func TestRegistry_Defaults(t *testing.T) {
	reg := MustRegistry(Config{
		Key: "offenseTypes", BasePath: "/api/offense-types", IDField: "typeId",
		Fields: []FieldSpec{{Name: "typeId"}, {Name: "standard_fine_amount", Type: TypeFloat}},
	})
	cfg, ok := reg.Get("offenseTypes")
	if !ok {
		t.Fatal("сущность не найдена")
	}
	if cfg.Label != "Offense Types" {
		t.Errorf("Label = %q", cfg.Label)
	}
	if cfg.Fields[0].Type != TypeString || cfg.Fields[0].Label != "Type Id" {
		t.Errorf("поле по умолчанию: %+v", cfg.Fields[0])
	}
	if cfg.Fields[1].Label != "Standard Fine Amount" {
		t.Errorf("Label = %q", cfg.Fields[1].Label)
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()

	for _, key := range []string{"offenses", "fines", "vehicles", "drivers", "appeals", "users", "roles", "permissions", "loginLogs", "operationLogs", "myOffenses", "myVehicles", "myAppeals", "myFines"} {
		if _, ok := reg.Get(key); !ok {
			t.Errorf("сущность %s отсутствует в каталоге", key)
		}
	}

	user := reg.ForRoles(rbac.NewSet(rbac.RoleUser))
	for _, cfg := range user {
		if cfg.Key == "offenses" || cfg.Key == "users" {
			t.Errorf("экран %s не должен быть доступен USER", cfg.Key)
		}
	}
	reviewer := reg.ForRoles(rbac.NewSet(rbac.RoleAppealReviewer))
	for _, cfg := range reviewer {
		if cfg.Key == "users" || cfg.Key == "myAppeals" {
			t.Errorf("экран %s не должен быть доступен APPEAL_REVIEWER", cfg.Key)
		}
	}

	if cfg, ok := reg.ByRoute("/appealManagement"); !ok || cfg.Key != "appeals" || !cfg.HasCustomList() {
		t.Error("экран жалоб должен использовать fan-out выборку")
	}
}

func TestRenderCell(t *testing.T) {
	tests := []struct {
		name     string
		field    FieldSpec
		value    any
		wantText string
		wantKind CellKind
		wantTone Tone
	}{
		{name: "datetime ISO", field: FieldSpec{Name: "offenseTime", Type: TypeDateTime}, value: "2024-03-05T08:07:09", wantText: "2024-03-05 08:07", wantKind: CellDateTime},
		{name: "datetime с зоной", field: FieldSpec{Name: "t", Type: TypeDateTime}, value: "2024-03-05T08:07:09.123+03:00", wantText: "2024-03-05 08:07", wantKind: CellDateTime},
		{name: "datetime массивом", field: FieldSpec{Name: "t", Type: TypeDateTime}, value: []any{json.Number("2024"), json.Number("1"), json.Number("2"), json.Number("3"), json.Number("4")}, wantText: "2024-01-02 03:04", wantKind: CellDateTime},
		{name: "datetime epoch", field: FieldSpec{Name: "t", Type: TypeDateTime}, value: json.Number("0"), wantText: "1970-01-01 00:00", wantKind: CellDateTime},
		{name: "datetime нераспознанная", field: FieldSpec{Name: "t", Type: TypeDateTime}, value: "вчера", wantText: "вчера", wantKind: CellDateTime},
		{name: "datetime пустая", field: FieldSpec{Name: "t", Type: TypeDateTime}, value: nil, wantText: "", wantKind: CellDateTime},
		{name: "статус оплачен", field: FieldSpec{Name: "paymentStatus"}, value: "Paid", wantText: "Paid", wantKind: CellStatus, wantTone: ToneSuccess},
		{name: "статус не оплачен", field: FieldSpec{Name: "paymentStatus"}, value: "UNPAID", wantText: "UNPAID", wantKind: CellStatus, wantTone: ToneDanger},
		{name: "статус ожидает", field: FieldSpec{Name: "processStatus"}, value: "Pending", wantText: "Pending", wantKind: CellStatus, wantTone: ToneWarning},
		{name: "статус в работе", field: FieldSpec{Name: "processStatus"}, value: "Processing", wantText: "Processing", wantKind: CellStatus, wantTone: ToneWarning},
		{name: "статус отклонён", field: FieldSpec{Name: "processStatus"}, value: "Rejected", wantText: "Rejected", wantKind: CellStatus, wantTone: ToneDanger},
		{name: "статус ошибки", field: FieldSpec{Name: "restoreStatus"}, value: "FAILED", wantText: "FAILED", wantKind: CellStatus, wantTone: ToneDanger},
		{name: "статус неактивен", field: FieldSpec{Name: "status"}, value: "Inactive", wantText: "Inactive", wantKind: CellStatus, wantTone: ToneDanger},
		{name: "статус одобрен", field: FieldSpec{Name: "Status"}, value: "Approved", wantText: "Approved", wantKind: CellStatus, wantTone: ToneSuccess},
		{name: "статус неизвестен", field: FieldSpec{Name: "status"}, value: "Archived", wantText: "Archived", wantKind: CellStatus, wantTone: ToneNeutral},
		{name: "статус пуст", field: FieldSpec{Name: "status"}, value: nil, wantText: "", wantKind: CellStatus, wantTone: ToneNeutral},
		{name: "число", field: FieldSpec{Name: "fineAmount", Type: TypeFloat}, value: json.Number("200.50"), wantText: "200.50", wantKind: CellText},
		{name: "bool", field: FieldSpec{Name: "isVisible", Type: TypeBoolean}, value: true, wantText: "true", wantKind: CellText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderCell(tt.field, tt.value)
			if got.Text != tt.wantText || got.Kind != tt.wantKind || got.Tone != tt.wantTone {
				t.Errorf("RenderCell = %+v, ожидалось text=%q kind=%s tone=%s", got, tt.wantText, tt.wantKind, tt.wantTone)
			}
		})
	}
}

func TestRenderTable(t *testing.T) {
	reg := DefaultRegistry()
	cfg, _ := reg.Get("vehicles")

	table := RenderTable(cfg, []model.Record{
		{"vehicleId": json.Number("3"), "licensePlate": "A123", "unknownField": "x"},
	})

	if len(table.Columns) != MaxColumns {
		t.Fatalf("ожидалось %d столбцов, получено %d", MaxColumns, len(table.Columns))
	}
	if table.Rows[0].ID != "3" {
		t.Errorf("ID = %q", table.Rows[0].ID)
	}
	for _, cell := range table.Rows[0].Cells {
		if cell.Field == "unknownField" {
			t.Error("поле вне схемы не выводится")
		}
		if cell.Field == "brand" && cell.Text != "" {
			t.Error("отсутствующее поле должно давать пустую ячейку")
		}
	}
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"offenseId":        "Offense Id",
		"process_status":   "Process Status",
		"licensePlate":     "License Plate",
		"myAppeals":        "My Appeals",
		"email":            "Email",
		"backup-file-size": "Backup File Size",
		"userID":           "User ID",
		"vehicleVIN":       "Vehicle VIN",
		"URL":              "URL",
	}
	for in, want := range tests {
		if got := Humanize(in); got != want {
			t.Errorf("Humanize(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}

func TestBuildForm(t *testing.T) {
	reg := DefaultRegistry()
	cfg, _ := reg.Get("users")

	form := BuildForm(cfg, model.Record{"userId": json.Number("4"), "email": "a@b.c", "lastLoginTime": "2024-01-02T03:04:05"})
	byName := map[string]FormField{}
	for _, f := range form {
		byName[f.Name] = f
	}

	if !byName["userId"].Disabled {
		t.Error("поле-идентификатор должно быть недоступно для редактирования")
	}
	if !byName["lastLoginTime"].Disabled || byName["lastLoginTime"].Value != "2024-01-02T03:04" {
		t.Errorf("lastLoginTime: %+v", byName["lastLoginTime"])
	}
	if byName["email"].Input != "email" || byName["password"].Input != "password" {
		t.Error("неверные типы полей email/password")
	}
	if !byName["remarks"].Multiline {
		t.Error("remarks — многострочное поле")
	}

	perms, _ := reg.Get("permissions")
	for _, f := range BuildForm(perms, nil) {
		if f.Name == "isVisible" && (f.Input != "checkbox" || f.Value != false) {
			t.Errorf("isVisible: %+v", f)
		}
		if f.Name == "sortOrder" && f.Input != "number" {
			t.Errorf("sortOrder: %+v", f)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		field   FieldSpec
		value   any
		want    any
		wantErr bool
	}{
		{name: "целое", field: FieldSpec{Name: "n", Type: TypeInteger}, value: "42", want: int64(42)},
		{name: "целое пустое", field: FieldSpec{Name: "n", Type: TypeInteger}, value: "", want: nil},
		{name: "целое из JSON", field: FieldSpec{Name: "n", Type: TypeInteger}, value: json.Number("7"), want: int64(7)},
		{name: "целое ошибка", field: FieldSpec{Name: "n", Type: TypeInteger}, value: "4.5", wantErr: true},
		{name: "дробное", field: FieldSpec{Name: "f", Type: TypeFloat}, value: "200.5", want: 200.5},
		{name: "дробное ошибка", field: FieldSpec{Name: "f", Type: TypeFloat}, value: "abc", wantErr: true},
		{name: "bool on", field: FieldSpec{Name: "b", Type: TypeBoolean}, value: "on", want: true},
		{name: "bool пусто", field: FieldSpec{Name: "b", Type: TypeBoolean}, value: "", want: false},
		{name: "дата из формы", field: FieldSpec{Name: "d", Type: TypeDateTime}, value: "2024-05-01T10:30", want: "2024-05-01T10:30:00"},
		{name: "дата ошибка", field: FieldSpec{Name: "d", Type: TypeDateTime}, value: "01.05.2024", wantErr: true},
		{name: "строка", field: FieldSpec{Name: "s"}, value: "text", want: "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.field, tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Errorf("ожидалась ErrInvalidValue, получено %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Coerce = %#v, ожидалось %#v", got, tt.want)
			}
		})
	}
}

func TestPayload(t *testing.T) {
	reg := DefaultRegistry()
	appeals, _ := reg.Get("myAppeals")

	restore := nowLocal
	nowLocal = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { nowLocal = restore })

	payload, err := Payload(appeals, nil, map[string]any{
		"appealId":     "99",
		"offenseId":    "5",
		"appealReason": "камера ошиблась",
		"notInSchema":  "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := payload["appealId"]; ok {
		t.Error("идентификатор не должен попадать в payload")
	}
	if _, ok := payload["notInSchema"]; ok {
		t.Error("поле вне схемы не должно попадать в payload")
	}
	if payload["offenseId"] != int64(5) {
		t.Errorf("offenseId = %#v", payload["offenseId"])
	}
	if payload["processStatus"] != StatusPending || payload["appealTime"] != "2024-06-01T12:00:00" {
		t.Errorf("новая жалоба: %+v", payload)
	}

	vehicles, _ := reg.Get("vehicles")
	base := model.Record{"vehicleId": json.Number("1"), "brand": "Lada", "licensePlate": "a 1"}
	payload, err = Payload(vehicles, base, map[string]any{"licensePlate": " x777xx "})
	if err != nil {
		t.Fatal(err)
	}
	if payload["brand"] != "Lada" || payload["licensePlate"] != "X777XX" {
		t.Errorf("update payload: %+v", payload)
	}

	if _, err := Payload(vehicles, base, map[string]any{"firstRegistrationDate": "never"}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("ожидалась ErrInvalidValue, получено %v", err)
	}
}
