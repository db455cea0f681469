package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	if got := f.Type.String(); got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

// --- KVEntry tests ---

func TestKVEntry_Fields(t *testing.T) {
	typ := reflect.TypeOf(KVEntry{})

	assertGormTag(t, typ, "Key", "primaryKey")
	assertGormTag(t, typ, "Key", "size:64")
	assertGormTag(t, typ, "Value", "type:text")
	assertGormTag(t, typ, "Value", "not null")

	assertFieldType(t, typ, "Key", "string")
	assertFieldType(t, typ, "Value", "string")
	assertFieldType(t, typ, "UpdatedAt", "time.Time")
}

func TestKVEntry_TableName(t *testing.T) {
	if got := (KVEntry{}).TableName(); got != "kv_entries" {
		t.Errorf("TableName() = %q, want %q", got, "kv_entries")
	}
}

func TestKVEntry_Instantiation(t *testing.T) {
	now := time.Now()
	e := KVEntry{Key: "location.label", Value: "Home", UpdatedAt: now}
	if e.Key != "location.label" || e.Value != "Home" || !e.UpdatedAt.Equal(now) {
		t.Errorf("KVEntry = %+v", e)
	}
}
