package iban

import (
	"regexp"
	"testing"
)

var shape = regexp.MustCompile(`^TR\d{24}$`)

func TestAllocateNeverReturnsExisting(t *testing.T) {
	existing := map[string]struct{}{}
	for i := 0; i < 10000; i++ {
		before := len(existing)
		id, err := Allocate(existing)
		if err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
		if len(existing) != before+1 {
			t.Fatalf("allocation %d returned %s which was already present", i, id)
		}
		if !shape.MatchString(id) {
			t.Fatalf("allocation %d: %q has wrong shape", i, id)
		}
		if !Checksum(id) {
			t.Fatalf("allocation %d: %q has bad check digits", i, id)
		}
	}
}

func TestAllocateReservesInCallerSet(t *testing.T) {
	existing := map[string]struct{}{"TR000000000000000000000999": {}}
	id, err := Allocate(existing)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := existing[id]; !ok {
		t.Fatalf("%s not reserved in caller set", id)
	}
}

func TestNormalizeAndValid(t *testing.T) {
	got := Normalize(" tr06 0006 1005 1978 6457 8413 32 ")
	if got != "TR060006100519786457841332" {
		t.Fatalf("Normalize = %q", got)
	}
	if !Valid(got) {
		t.Fatalf("Valid(%q) = false", got)
	}
	for _, bad := range []string{"", "TR123", "DE060006100519786457841332", "tr0600061005"} {
		if Valid(bad) {
			t.Fatalf("Valid(%q) = true", bad)
		}
	}
}

func TestChecksumRejectsTampering(t *testing.T) {
	id, _ := Allocate(map[string]struct{}{})
	last := id[len(id)-1]
	swapped := byte('0')
	if last == '0' {
		swapped = '1'
	}
	tampered := id[:len(id)-1] + string(swapped)
	if Checksum(tampered) {
		t.Fatalf("Checksum(%q) = true after tampering %q", tampered, id)
	}
}
