package forms

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientValidate(t *testing.T) {
	tests := []struct {
		name string
		form Client
		want Errors
	}{
		{"name only", Client{Name: "Ana"}, nil},
		{"missing name", Client{}, Errors{{"name", "Nome é obrigatório"}}},
		{"blank name", Client{Name: "   "}, Errors{{"name", "Nome é obrigatório"}}},
		{"short name", Client{Name: "A"}, Errors{{"name", "O nome deve ter pelo menos 2 caracteres"}}},
		{"accented two letters", Client{Name: "Jô"}, nil},
		{"bad email", Client{Name: "Ana", Email: "ana@"}, Errors{{"email", "Email inválido"}}},
		{"good email", Client{Name: "Ana", Email: "Ana.Souza+x@Example.COM"}, nil},
		{
			"errors in field order",
			Client{Email: "nope"},
			Errors{{"name", "Nome é obrigatório"}, {"email", "Email inválido"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.form.Validate()); diff != "" {
				t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRegisterValidate(t *testing.T) {
	valid := Register{FullName: "Ana Souza", Email: "ana@example.com", Password: "segredo", ConfirmPassword: "segredo"}
	assert.True(t, valid.Validate().Ok())

	f := Register{FullName: "Al", Email: "ana", Password: "123", ConfirmPassword: "1234"}
	want := Errors{
		{"full_name", "O nome deve ter pelo menos 3 caracteres"},
		{"email", "Email inválido"},
		{"password", "A senha deve ter pelo menos 6 caracteres"},
		{"confirm_password", "As senhas não conferem"},
	}
	if diff := cmp.Diff(want, f.Validate()); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}

	empty := Register{}.Validate()
	assert.Equal(t, "Confirmação de senha é obrigatória", empty.Get("confirm_password"))
	assert.Len(t, empty, 4)
}

func TestLoginAndForgotValidate(t *testing.T) {
	assert.True(t, Login{Email: "ana@example.com", Password: "segredo"}.Validate().Ok())

	errs := Login{Email: "ana@example.com", Password: "123"}.Validate()
	assert.Equal(t, "A senha deve ter pelo menos 6 caracteres", errs.Get("password"))
	assert.Empty(t, errs.Get("email"))

	assert.Equal(t, "Email é obrigatório", ForgotPassword{}.Validate().Get("email"))
	assert.True(t, ForgotPassword{Email: "ana@example.com"}.Validate().Ok())
}

func TestResetPasswordValidate(t *testing.T) {
	assert.True(t, ResetPassword{Token: "t", Password: "novasenha", ConfirmPassword: "novasenha"}.Validate().Ok())
	errs := ResetPassword{Password: "novasenha", ConfirmPassword: "outra"}.Validate()
	assert.Equal(t, "As senhas não conferem", errs.Get("confirm_password"))
}

func TestSaleForm(t *testing.T) {
	v := url.Values{
		"client_id":    {"c-1"},
		"sale_date":    {"2024-03-15"},
		"instagram":    {" @ana "},
		"notes":        {"duas fotos"},
		"is_completed": {"on"},
	}
	f := ParseSale(v)
	require.True(t, f.Validate().Ok())

	in := f.Input()
	assert.Equal(t, "c-1", in.ClientID)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), in.SaleDate)
	assert.Equal(t, "@ana", in.Instagram)
	assert.True(t, in.IsCompleted)

	errs := Sale{}.Validate()
	want := Errors{{"client_id", "Cliente é obrigatório"}, {"sale_date", "Data é obrigatória"}}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Data inválida", Sale{ClientID: "c-1", SaleDate: "15/03/2024"}.Validate().Get("sale_date"))
	assert.True(t, Sale{SaleDate: "2024-03-15"}.ValidateEdit().Ok())
}
