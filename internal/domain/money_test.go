package domain

import (
	"errors"
	"testing"
)

func TestMoneyMajorRoundTrip(t *testing.T) {
	for _, units := range []int64{0, 1, 42, 999, 150000, 9223372036854775} {
		m := FromMajor(units, "NGN")
		got, rem := m.Major()
		if got != units || rem != 0 {
			t.Errorf("FromMajor(%d) round trip = (%d, %d), want (%d, 0)", units, got, rem, units)
		}
	}
}

func TestMoneyMajorRemainder(t *testing.T) {
	m := NewMoney(1234, "NGN")
	units, rem := m.Major()
	if units != 12 || rem != 34 {
		t.Errorf("Major() = (%d, %d), want (12, 34)", units, rem)
	}
}

func TestMoneyAdd(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Money
		want    int64
		wantErr bool
	}{
		{name: "same currency", a: NewMoney(1000, "NGN"), b: NewMoney(500, "NGN"), want: 1500},
		{name: "zero", a: NewMoney(1000, "NGN"), b: NewMoney(0, "NGN"), want: 1000},
		{name: "mismatched currency", a: NewMoney(1000, "NGN"), b: NewMoney(500, "USD"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Add(tt.b)
			if tt.wantErr {
				if !errors.Is(err, ErrCurrencyMismatch) {
					t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Amount != tt.want {
				t.Errorf("Add = %d, want %d", got.Amount, tt.want)
			}
		})
	}
}

func TestMoneySub(t *testing.T) {
	got, err := NewMoney(1000, "NGN").Sub(NewMoney(1500, "NGN"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Amount != -500 {
		t.Errorf("Sub = %d, want -500", got.Amount)
	}

	if _, err := NewMoney(1000, "NGN").Sub(NewMoney(1, "GHS")); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestMoneyCmp(t *testing.T) {
	a := NewMoney(1000, "NGN")

	if c, _ := a.Cmp(NewMoney(500, "NGN")); c != 1 {
		t.Errorf("Cmp greater = %d, want 1", c)
	}
	if c, _ := a.Cmp(NewMoney(1000, "NGN")); c != 0 {
		t.Errorf("Cmp equal = %d, want 0", c)
	}
	if c, _ := a.Cmp(NewMoney(2000, "NGN")); c != -1 {
		t.Errorf("Cmp lesser = %d, want -1", c)
	}
	if _, err := a.Cmp(NewMoney(1000, "USD")); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestMoneyString(t *testing.T) {
	if s := NewMoney(123456, "NGN").String(); s != "NGN 1234.56" {
		t.Errorf("String = %q", s)
	}
	if s := NewMoney(5, "NGN").String(); s != "NGN 0.05" {
		t.Errorf("String = %q", s)
	}
}

func TestTransactionSignedDelta(t *testing.T) {
	credit := Transaction{Direction: DirectionCredit, Amount: NewMoney(6000, "NGN")}
	if d := credit.SignedDelta(); d != 6000 {
		t.Errorf("credit delta = %d, want 6000", d)
	}
	debit := Transaction{Direction: DirectionDebit, Amount: NewMoney(6000, "NGN")}
	if d := debit.SignedDelta(); d != -6000 {
		t.Errorf("debit delta = %d, want -6000", d)
	}
}
