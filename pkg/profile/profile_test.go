package profile

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/secure"
)

func TestTypeFor(t *testing.T) {
	got := TypeFor(0x0203)
	if got.String() != "cc3cdd9f-a4b0-4f7d-88b0-6d3a93ae0203" {
		t.Errorf("TypeFor(0x0203) = %s", got)
	}

	short, ok := ShortID(got)
	if !ok || short != 0x0203 {
		t.Errorf("ShortID() = %#04x, %v", short, ok)
	}
	if _, ok := ShortID(uuid.New()); ok {
		t.Error("ShortID() accepted a foreign UUID")
	}
}

func TestTypeByName(t *testing.T) {
	got, ok := TypeByName("credentials")
	if !ok || got != CredentialsType {
		t.Errorf("TypeByName(credentials) = %s, %v", got, ok)
	}
	if _, ok := TypeByName("nope"); ok {
		t.Error("TypeByName(nope) should fail")
	}
	if Name(uuid.Nil) != uuid.Nil.String() {
		t.Errorf("Name(nil) = %q", Name(uuid.Nil))
	}
}

func TestTable(t *testing.T) {
	id := uuid.New()
	table, err := Table(Config{ID: id, Name: "Inverter", Model: "PIP", LowBatteryThreshold: 30})
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	services := table.Services()
	if len(services) != 5 {
		t.Fatalf("len(Services()) = %d, want 5", len(services))
	}
	if services[0].Handle != 1 {
		t.Errorf("first service handle = %d, want 1", services[0].Handle)
	}

	v, ok := table.Value(IdentifierType)
	if got, _ := v.AsUUID(); !ok || got != id {
		t.Errorf("identifier = %v", v)
	}

	t.Run("low battery follows level", func(t *testing.T) {
		if err := table.Set(BatteryLevelType, attribute.Uint8(80)); err != nil {
			t.Fatal(err)
		}
		v, _ := table.Value(LowBatteryType)
		if low, _ := v.AsBool(); low {
			t.Error("low battery at 80%")
		}

		if err := table.Set(BatteryLevelType, attribute.Uint8(29)); err != nil {
			t.Fatal(err)
		}
		v, _ = table.Value(LowBatteryType)
		if low, _ := v.AsBool(); !low {
			t.Error("no low battery at 29%")
		}
	})

	t.Run("auth writes are encrypted", func(t *testing.T) {
		for _, typ := range []uuid.UUID{SetupType, InviteType, ConfirmType, RevokeType, CommandType} {
			info, ok := table.Lookup(typ)
			if !ok {
				t.Fatalf("%s not published", Name(typ))
			}
			if !info.Properties.Encrypted() {
				t.Errorf("%s is not encrypted", Name(typ))
			}
		}
	})
}

func TestRoster(t *testing.T) {
	created := time.Unix(1700000000, 0)
	items := []credential.Item{
		{Kind: credential.ItemCredential, Credential: &credential.Credential{
			ID: uuid.New(), Name: "Owner", Permission: credential.PermissionOwner, CreatedAt: created,
		}},
		{Kind: credential.ItemInvitation, Invitation: &credential.Invitation{
			ID: uuid.New(), Name: "Guest", Permission: credential.PermissionUser, CreatedAt: created,
		}},
	}

	v, err := RosterValue(items)
	if err != nil {
		t.Fatalf("RosterValue() error = %v", err)
	}
	data, err := v.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := ParseRoster(data)
	if err != nil {
		t.Fatalf("ParseRoster() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for i := range items {
		if got[i].ID() != items[i].ID() || got[i].Name() != items[i].Name() || got[i].Pending() != items[i].Pending() {
			t.Errorf("item %d = %+v, want %+v", i, got[i], items[i])
		}
	}
}

func TestRequestPayload(t *testing.T) {
	req := InviteRequest{ID: uuid.New(), Name: "Guest", Permission: credential.PermissionAdmin, Secret: secure.NewKey()}
	data, err := MarshalRequest(req)
	if err != nil {
		t.Fatal(err)
	}

	var got InviteRequest
	if err := UnmarshalRequest(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != req.ID || got.Name != req.Name || got.Permission != req.Permission || !got.Secret.Equal(req.Secret) {
		t.Errorf("got %+v, want %+v", got, req)
	}
	if !got.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", got.ExpiresAt)
	}

	if err := UnmarshalRequest([]byte{0xff}, &got); err == nil {
		t.Error("UnmarshalRequest(garbage) should fail")
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		input int
		want  []int
	}{
		{"empty", 4, 0, []int{0}},
		{"short", 4, 3, []int{3}},
		{"exact multiple", 4, 8, []int{4, 4, 0}},
		{"remainder", 4, 10, []int{4, 4, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{'x'}, tt.input)
			chunks := Chunks(data, tt.size)
			if len(chunks) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tt.want))
			}

			a := NewAssembler(tt.size)
			for i, c := range chunks {
				if len(c) != tt.want[i] {
					t.Errorf("chunk %d len = %d, want %d", i, len(c), tt.want[i])
				}
				out, done := a.Add(c)
				if done != (i == len(chunks)-1) {
					t.Fatalf("chunk %d done = %v", i, done)
				}
				if done && !bytes.Equal(out, data) {
					t.Errorf("reassembled %q, want %q", out, data)
				}
			}
		})
	}
}
