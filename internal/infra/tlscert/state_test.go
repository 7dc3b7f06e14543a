package tlscert

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseUninitialized, "uninitialized"},
		{PhaseIssuing, "issuing"},
		{PhaseValid, "valid"},
		{PhaseRenewing, "renewing"},
		{PhaseExpiring, "expiring"},
		{PhaseInvalid, "invalid"},
		{Phase(42), "phase(42)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.phase.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhase_UnmarshalText(t *testing.T) {
	var p Phase
	if err := p.UnmarshalText([]byte("renewing")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if p != PhaseRenewing {
		t.Errorf("UnmarshalText() = %v, want %v", p, PhaseRenewing)
	}
	if err := p.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText(bogus) should fail")
	}
}

func TestBundle_MarshalParse(t *testing.T) {
	bundle, err := (&SelfSignedIssuer{}).Issue(context.Background(), []string{"example.test"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	parsed, err := ParseBundle(bundle.Marshal())
	if err != nil {
		t.Fatalf("ParseBundle() error = %v", err)
	}
	if string(parsed.CertPEM) != string(bundle.CertPEM) {
		t.Error("CertPEM changed across Marshal/ParseBundle")
	}
	if string(parsed.KeyPEM) != string(bundle.KeyPEM) {
		t.Error("KeyPEM changed across Marshal/ParseBundle")
	}

	issuedAt := time.Unix(1700000000, 0)
	st, err := parsed.State("self_signed", issuedAt)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if st.Leaf == nil || st.Certificate == nil {
		t.Fatal("State() missing certificate")
	}
	if !st.Covers([]string{"example.test"}) {
		t.Error("Covers(example.test) = false")
	}
	if st.Covers([]string{"other.test"}) {
		t.Error("Covers(other.test) = true")
	}
	if !st.IssuedAt.Equal(issuedAt) {
		t.Errorf("IssuedAt = %v, want %v", st.IssuedAt, issuedAt)
	}
}

func TestParseBundle_Errors(t *testing.T) {
	bundle, err := (&SelfSignedIssuer{}).Issue(context.Background(), []string{"example.test"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "no certificate"},
		{"key only", bundle.KeyPEM, "no certificate"},
		{"cert only", bundle.CertPEM, "no private key"},
		{"two keys", append(append(append([]byte{}, bundle.CertPEM...), bundle.KeyPEM...), bundle.KeyPEM...), "more than one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBundle(tt.data)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseBundle() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestBundle_StateMismatchedKey(t *testing.T) {
	a, _ := (&SelfSignedIssuer{}).Issue(context.Background(), []string{"a.test"})
	b, _ := (&SelfSignedIssuer{}).Issue(context.Background(), []string{"b.test"})

	mixed := &Bundle{CertPEM: a.CertPEM, KeyPEM: b.KeyPEM}
	if _, err := mixed.State("x", time.Now()); err == nil {
		t.Error("State() with mismatched key should fail")
	}
}

func TestCacheKey(t *testing.T) {
	a := string(cacheKey([]string{"b.test", "a.test"}))
	b := string(cacheKey([]string{"a.test", "b.test"}))
	if a != b {
		t.Errorf("cacheKey depends on order: %q vs %q", a, b)
	}
	if a != "cert/a.test,b.test" {
		t.Errorf("cacheKey = %q", a)
	}
}

func TestSelfSignedIssuer_IPAndValidity(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer := &SelfSignedIssuer{Validity: 48 * time.Hour, Now: func() time.Time { return now }}

	bundle, err := issuer.Issue(context.Background(), []string{"localhost", "127.0.0.1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	st, err := bundle.State(issuer.Name(), now)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if !st.Covers([]string{"localhost", "127.0.0.1"}) {
		t.Errorf("certificate does not cover localhost and 127.0.0.1: %v", st.Domains)
	}
	if want := now.Add(47*time.Hour + 59*time.Minute); !st.NotAfter.Equal(want) {
		t.Errorf("NotAfter = %v, want %v", st.NotAfter, want)
	}

	if _, err := issuer.Issue(context.Background(), nil); err == nil {
		t.Error("Issue() without domains should fail")
	}
}
