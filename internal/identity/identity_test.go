package identity

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"919876543210", "919876543210"},
		{"+91 98765 43210", "919876543210"},
		{" 62812-3456 ", "628123456"},
		{"919876543210@s.whatsapp.net", "919876543210@s.whatsapp.net"},
		{"+919876543210@s.whatsapp.net", "919876543210@s.whatsapp.net"},
		{"1203630zXy-abc@g.us", "1203630zXy-abc@g.us"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"+91 98765 43210",
		"919876543210@s.whatsapp.net",
		"xyzgroup@g.us",
		"", "abc@unknown.example",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestSame(t *testing.T) {
	if !Same("+91 98765 43210", "919876543210") {
		t.Error("expected phone variants to match")
	}
	if Same("919876543210", "919876543211") {
		t.Error("distinct numbers must not match")
	}
	if Same("919876543210", "grp@g.us") {
		t.Error("user and group must not match")
	}
}

func TestKindAndGroup(t *testing.T) {
	if Kind("919876543210") != KindUser {
		t.Error("bare number should be user kind")
	}
	if Kind("919876543210@s.whatsapp.net") != KindIndividual {
		t.Error("expected individual kind")
	}
	if Kind("abc@g.us") != KindGroup || !IsGroup("abc@g.us") {
		t.Error("expected group kind")
	}
	if IsGroup("919876543210") {
		t.Error("bare number is not a group")
	}
}

func TestToUserJIDAndBareNumber(t *testing.T) {
	if got := ToUserJID("+9198765 43210"); got != "919876543210@s.whatsapp.net" {
		t.Errorf("ToUserJID = %q", got)
	}
	if got := ToUserJID("abc@g.us"); got != "abc@g.us" {
		t.Errorf("ToUserJID should not touch groups, got %q", got)
	}
	if got := BareNumber("919876543210@s.whatsapp.net"); got != "919876543210" {
		t.Errorf("BareNumber = %q", got)
	}
	if got := BareNumber("abc@g.us"); got != "" {
		t.Errorf("groups have no number form, got %q", got)
	}
}

func TestValidPhone(t *testing.T) {
	if !ValidPhone("919876543210") || !ValidPhone("+91 98765-43210") {
		t.Error("expected valid phone")
	}
	for _, in := range []string{"", "   ", "abc", "abc@g.us", "1@s.whatsapp.net"} {
		if ValidPhone(in) {
			t.Errorf("ValidPhone(%q) should be false", in)
		}
	}
}
