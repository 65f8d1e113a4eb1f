// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindParse, "invalid input")
	if err.Error() != "invalid input" {
		t.Errorf("expected 'invalid input', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to validate")
	if wrapped.Error() != "failed to validate: invalid input" {
		t.Errorf("expected 'failed to validate: invalid input', got '%s'", wrapped.Error())
	}
}

func TestErrorIncludesOp(t *testing.T) {
	err := Op(New(KindIO, "short read"), "store.InsertEvent")
	if err.Error() != "store.InsertEvent: short read" {
		t.Errorf("expected op-prefixed message, got %q", err.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindParse, "invalid input")
	if GetKind(err) != KindParse {
		t.Errorf("expected KindParse, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindInternal, "failed")
	if GetKind(wrapped) != KindInternal {
		t.Errorf("expected KindInternal, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := Wrap(New(KindIO, "disk full"), KindConflict, "insert event")
	if !errors.Is(err, &Error{Kind: KindConflict}) {
		t.Error("expected errors.Is to match on Kind against a bare sentinel")
	}
	if errors.Is(err, &Error{Kind: KindTimeout}) {
		t.Error("did not expect a Kind mismatch to report Is")
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindParse, "invalid input")
	err = Attr(err, "field", "SRC")
	err = Attr(err, "value", "1.2.3.4")

	attrs := GetAttributes(err)
	values := make(map[string]any, len(attrs))
	for _, a := range attrs {
		values[a.Key] = a.Value.Any()
	}
	if values["field"] != "SRC" {
		t.Errorf("expected SRC, got %v", values["field"])
	}
	if values["value"] != "1.2.3.4" {
		t.Errorf("expected 1.2.3.4, got %v", values["value"])
	}

	wrapped := Wrap(err, KindInternal, "failed")
	wrapped = Attr(wrapped, "operation", "parse")

	allAttrs := GetAttributes(wrapped)
	if len(allAttrs) != 3 {
		t.Fatalf("expected 3 attributes across the chain, got %d: %v", len(allAttrs), allAttrs)
	}
}

func TestIsConflict(t *testing.T) {
	err := New(KindConflict, "event exists")
	if !IsConflict(err) {
		t.Errorf("expected IsConflict true")
	}
	if IsConflict(New(KindParse, "bad line")) {
		t.Errorf("expected IsConflict false")
	}
}
