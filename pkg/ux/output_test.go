// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"strings"
	"testing"
)

func TestIconRender_NotEmpty(t *testing.T) {
	icons := []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow, IconBullet}
	for _, ic := range icons {
		if ic.Render() == "" {
			t.Errorf("icon %q rendered empty", string(ic))
		}
	}
}

func TestProgressBar_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	if got := ProgressBar(3, 10, 20); got != "3/10" {
		t.Errorf("expected plain ratio, got %q", got)
	}
}

func TestProgressBar_StyledIncludesPercent(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityStandard)

	got := ProgressBar(5, 10, 10)
	if !strings.Contains(got, "%") {
		t.Errorf("expected percent suffix, got %q", got)
	}
}

func TestProgressBar_ZeroTotalDoesNotPanic(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityStandard)

	_ = ProgressBar(0, 0, 10)
}

func TestRepeatChar(t *testing.T) {
	if got := repeatChar('x', 3); got != "xxx" {
		t.Errorf("expected xxx, got %q", got)
	}
	if got := repeatChar('x', 0); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if got := repeatChar('x', -1); got != "" {
		t.Errorf("expected empty for negative, got %q", got)
	}
}

// The print helpers write to stdout; these just confirm no mode panics.
func TestPrintHelpers_AllModes(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	for _, level := range []PersonalityLevel{
		PersonalityFull, PersonalityStandard, PersonalityMinimal, PersonalityMachine,
	} {
		SetPersonalityLevel(level)
		Title("title")
		Success("success")
		Warning("warning")
		Error("error")
		Info("info")
		Muted("muted")
		Tip("tip")
		Box("box", "content")
		WarningBox("warn", "content")
		PathStatus("rules/style.md", IconSuccess, "written")
		PathStatus("rules/other.md", IconPending, "")
		Summary(Count{"written", 3}, Count{"skipped", 1})
	}
}
