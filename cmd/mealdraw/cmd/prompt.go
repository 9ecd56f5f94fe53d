package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/jmcleod/mealdraw/reconcile"
)

// Values accepted by --on-conflict.
const (
	conflictAsk       = "ask"
	conflictKeep      = "keep"
	conflictOverwrite = "overwrite"
)

// conflictResolver maps an --on-conflict value to a Resolver.
func conflictResolver(policy string) (reconcile.Resolver, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case conflictAsk, "":
		return reconcile.ResolverFunc(promptConflict), nil
	case conflictKeep:
		return reconcile.Always(reconcile.Keep), nil
	case conflictOverwrite:
		return reconcile.Always(reconcile.Overwrite), nil
	}
	return nil, fmt.Errorf("invalid --on-conflict %q (want ask, keep or overwrite)", policy)
}

func promptConflict(ctx context.Context, c reconcile.Conflict) (reconcile.Decision, error) {
	overwrite := false
	confirm := huh.NewConfirm().
		Title(fmt.Sprintf("%s is already recorded as %q for %s today", c.Slot, c.Existing, c.Category)).
		Description(fmt.Sprintf("Replace it with %q?", c.Proposed)).
		Affirmative("Overwrite").
		Negative("Keep").
		Value(&overwrite)

	if err := huh.NewForm(huh.NewGroup(confirm)).RunWithContext(ctx); err != nil {
		return reconcile.Keep, fmt.Errorf("prompt failed: %w", err)
	}
	if overwrite {
		return reconcile.Overwrite, nil
	}
	return reconcile.Keep, nil
}

// promptCredentials asks for whichever of username and password is empty.
func promptCredentials(ctx context.Context, username, password string) (string, string, error) {
	var fields []huh.Field
	if username == "" {
		fields = append(fields, huh.NewInput().
			Title("Username").
			Value(&username))
	}
	if password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password))
	}
	if len(fields) == 0 {
		return username, password, nil
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).RunWithContext(ctx); err != nil {
		return "", "", fmt.Errorf("prompt failed: %w", err)
	}
	if username == "" || password == "" {
		return "", "", fmt.Errorf("username and password are required")
	}
	return username, password, nil
}
