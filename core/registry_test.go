package core

import (
	"testing"

	"pkt.systems/termdock/schema"
)

func TestRegistryDefaultsViewTag(t *testing.T) {
	reg, err := newRegistry([]SessionSpec{
		{Name: "shell", Command: "bash"},
		{Name: "git", Command: "lazygit", ViewTag: "custom-tag"},
	})
	if err != nil {
		t.Fatalf("newRegistry: %v", err)
	}
	shell, err := reg.get("shell")
	if err != nil {
		t.Fatalf("get shell: %v", err)
	}
	if shell.ViewTag != schema.DefaultViewTag("shell") {
		t.Fatalf("expected default tag, got %q", shell.ViewTag)
	}
	git, _ := reg.get("git")
	if git.ViewTag != "custom-tag" {
		t.Fatalf("expected custom tag kept, got %q", git.ViewTag)
	}
}

func TestRegistryIterationOrder(t *testing.T) {
	reg, err := newRegistry([]SessionSpec{
		{Name: "c", Command: "x"},
		{Name: "a", Command: "x"},
		{Name: "b", Command: "x"},
	})
	if err != nil {
		t.Fatalf("newRegistry: %v", err)
	}
	var names []schema.SessionName
	reg.forEach(func(sess *session) {
		names = append(names, sess.Name)
	})
	want := []schema.SessionName{"c", "a", "b"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("registration order not kept: %v", names)
		}
	}
}
