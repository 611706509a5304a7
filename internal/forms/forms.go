// Package forms validates submitted forms before anything is sent to the
// backends. Each form yields its errors in field order.
package forms

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vbonduro/fotovendas/internal/domain"
)

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

const minPasswordLen = 6

type FieldError struct {
	Field   string
	Message string
}

// Errors is an ordered list of field errors.
type Errors []FieldError

func (e Errors) Ok() bool {
	return len(e) == 0
}

// Get returns the message for field, or "" if it has none.
func (e Errors) Get(field string) string {
	for _, fe := range e {
		if fe.Field == field {
			return fe.Message
		}
	}
	return ""
}

type checker struct {
	errs Errors
}

func (c *checker) add(field, msg string) {
	if c.errs.Get(field) == "" {
		c.errs = append(c.errs, FieldError{Field: field, Message: msg})
	}
}

func (c *checker) required(field, value, msg string) bool {
	if strings.TrimSpace(value) == "" {
		c.add(field, msg)
		return false
	}
	return true
}

func (c *checker) minLen(field, value string, n int, msg string) {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < n {
		c.add(field, msg)
	}
}

func (c *checker) email(field, value string) {
	if !emailPattern.MatchString(strings.TrimSpace(value)) {
		c.add(field, "Email inválido")
	}
}

type Login struct {
	Email    string
	Password string
}

func ParseLogin(v url.Values) Login {
	return Login{Email: strings.TrimSpace(v.Get("email")), Password: v.Get("password")}
}

func (f Login) Validate() Errors {
	var c checker
	if c.required("email", f.Email, "Email é obrigatório") {
		c.email("email", f.Email)
	}
	if c.required("password", f.Password, "Senha é obrigatória") {
		c.minLen("password", f.Password, minPasswordLen, "A senha deve ter pelo menos 6 caracteres")
	}
	return c.errs
}

type Register struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
}

func ParseRegister(v url.Values) Register {
	return Register{
		FullName:        strings.TrimSpace(v.Get("full_name")),
		Email:           strings.TrimSpace(v.Get("email")),
		Password:        v.Get("password"),
		ConfirmPassword: v.Get("confirm_password"),
	}
}

func (f Register) Validate() Errors {
	var c checker
	if c.required("full_name", f.FullName, "Nome completo é obrigatório") {
		c.minLen("full_name", f.FullName, 3, "O nome deve ter pelo menos 3 caracteres")
	}
	if c.required("email", f.Email, "Email é obrigatório") {
		c.email("email", f.Email)
	}
	if c.required("password", f.Password, "Senha é obrigatória") {
		c.minLen("password", f.Password, minPasswordLen, "A senha deve ter pelo menos 6 caracteres")
	}
	if c.required("confirm_password", f.ConfirmPassword, "Confirmação de senha é obrigatória") &&
		f.ConfirmPassword != f.Password {
		c.add("confirm_password", "As senhas não conferem")
	}
	return c.errs
}

type ForgotPassword struct {
	Email string
}

func ParseForgotPassword(v url.Values) ForgotPassword {
	return ForgotPassword{Email: strings.TrimSpace(v.Get("email"))}
}

func (f ForgotPassword) Validate() Errors {
	var c checker
	if c.required("email", f.Email, "Email é obrigatório") {
		c.email("email", f.Email)
	}
	return c.errs
}

type ResetPassword struct {
	Token           string
	Password        string
	ConfirmPassword string
}

func ParseResetPassword(v url.Values) ResetPassword {
	return ResetPassword{
		Token:           v.Get("token"),
		Password:        v.Get("password"),
		ConfirmPassword: v.Get("confirm_password"),
	}
}

func (f ResetPassword) Validate() Errors {
	var c checker
	if c.required("password", f.Password, "Senha é obrigatória") {
		c.minLen("password", f.Password, minPasswordLen, "A senha deve ter pelo menos 6 caracteres")
	}
	if c.required("confirm_password", f.ConfirmPassword, "Confirmação de senha é obrigatória") &&
		f.ConfirmPassword != f.Password {
		c.add("confirm_password", "As senhas não conferem")
	}
	return c.errs
}

type Client struct {
	Name  string
	Email string
	Phone string
}

func ParseClient(v url.Values) Client {
	return Client{
		Name:  strings.TrimSpace(v.Get("name")),
		Email: strings.TrimSpace(v.Get("email")),
		Phone: strings.TrimSpace(v.Get("phone")),
	}
}

func (f Client) Validate() Errors {
	var c checker
	if c.required("name", f.Name, "Nome é obrigatório") {
		c.minLen("name", f.Name, 2, "O nome deve ter pelo menos 2 caracteres")
	}
	if f.Email != "" {
		c.email("email", f.Email)
	}
	return c.errs
}

func (f Client) Input() domain.ClientInput {
	return domain.ClientInput{Name: f.Name, Email: f.Email, Phone: f.Phone}
}

type Sale struct {
	ClientID    string
	SaleDate    string
	Instagram   string
	Notes       string
	IsCompleted bool
}

func ParseSale(v url.Values) Sale {
	return Sale{
		ClientID:    strings.TrimSpace(v.Get("client_id")),
		SaleDate:    strings.TrimSpace(v.Get("sale_date")),
		Instagram:   strings.TrimSpace(v.Get("instagram")),
		Notes:       strings.TrimSpace(v.Get("notes")),
		IsCompleted: v.Get("is_completed") != "",
	}
}

// Validate checks a new sale. Edits keep their client, so they use
// ValidateEdit instead.
func (f Sale) Validate() Errors {
	var c checker
	c.required("client_id", f.ClientID, "Cliente é obrigatório")
	f.checkDate(&c)
	return c.errs
}

func (f Sale) ValidateEdit() Errors {
	var c checker
	f.checkDate(&c)
	return c.errs
}

func (f Sale) checkDate(c *checker) {
	if !c.required("sale_date", f.SaleDate, "Data é obrigatória") {
		return
	}
	if _, err := time.Parse(domain.DateLayout, f.SaleDate); err != nil {
		c.add("sale_date", "Data inválida")
	}
}

// Input converts a validated form. The date must already have passed
// validation.
func (f Sale) Input() domain.SaleInput {
	date, _ := time.Parse(domain.DateLayout, f.SaleDate)
	return domain.SaleInput{
		ClientID:    f.ClientID,
		SaleDate:    date,
		Instagram:   f.Instagram,
		Notes:       f.Notes,
		IsCompleted: f.IsCompleted,
	}
}
