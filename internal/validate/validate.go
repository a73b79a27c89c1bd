// Package validate はフォーム/クエリ入力のスキーマ検証を提供します。
//
// 値はまず Scalar で単一の文字列であることを確認し、その後に
// go-playground/validator のタグで形を検証します。検証を通った値だけが
// ストアの検索に渡されます。
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	RuleRequired = "required"
	RuleScalar   = "scalar"
	RuleMaxBytes = "maxbytes"
)

// 検索用ユーザー名のルール。作成時のルールは SignupForm のタグを参照。
const usernameLookupRule = "required,max=20"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// max は文字数で数えるため、bcrypt の72バイト上限はバイト数で別に確認する
	_ = v.RegisterValidation(RuleMaxBytes, func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	return v
}

// FieldError は1フィールド分の検証失敗です。
type FieldError struct {
	Field string
	Rule  string
}

// Failure は構造化された検証失敗です。
type Failure struct {
	Fields []FieldError
}

func (f *Failure) Error() string {
	parts := make([]string, len(f.Fields))
	for i, fe := range f.Fields {
		parts[i] = fmt.Sprintf("%s(%s)", fe.Field, fe.Rule)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Has は指定ルールの失敗を含むかを返します。
func (f *Failure) Has(rule string) bool {
	for _, fe := range f.Fields {
		if fe.Rule == rule {
			return true
		}
	}
	return false
}

// IsInjection は値が単一スカラーでなかったことによる失敗かを返します。
func IsInjection(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Has(RuleScalar)
}

// IsMissing は必須フィールドが無かったことによる失敗かを返します。
func IsMissing(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Has(RuleRequired)
}

// Scalar は field を単一の文字列として取り出します。
// 複数値（user=a&user=b）やマップ形式（user[$ne]=x）は拒否します。
func Scalar(values url.Values, field string) (string, error) {
	prefix := field + "["
	for key := range values {
		if strings.HasPrefix(key, prefix) {
			return "", &Failure{Fields: []FieldError{{Field: field, Rule: RuleScalar}}}
		}
	}

	vs, ok := values[field]
	if !ok || len(vs) == 0 {
		return "", &Failure{Fields: []FieldError{{Field: field, Rule: RuleRequired}}}
	}
	if len(vs) > 1 {
		return "", &Failure{Fields: []FieldError{{Field: field, Rule: RuleScalar}}}
	}
	return vs[0], nil
}

// SignupForm はアカウント作成フォームの検証済み値です。
type SignupForm struct {
	Username string `form:"username" validate:"required,alphanum,max=20"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,max=20,maxbytes=72"`
}

// Signup は username / email / password をまとめて検証します。
// どれか1つでも失敗すればフォーム全体を失敗とします。
func Signup(values url.Values) (SignupForm, error) {
	var (
		form   SignupForm
		failed []FieldError
	)

	targets := []struct {
		field string
		dst   *string
	}{
		{"username", &form.Username},
		{"email", &form.Email},
		{"password", &form.Password},
	}
	for _, t := range targets {
		v, err := Scalar(values, t.field)
		if err != nil {
			// 欠落は validator の required に任せる
			if IsInjection(err) {
				failed = append(failed, FieldError{Field: t.field, Rule: RuleScalar})
			}
			continue
		}
		*t.dst = v
	}

	if err := validate.Struct(form); err != nil {
		failed = append(failed, fieldErrors(err, "")...)
	}
	if len(failed) > 0 {
		return SignupForm{}, &Failure{Fields: dedupe(failed)}
	}
	return form, nil
}

// LookupUsername は検索キーとして使うユーザー名を検証します。
func LookupUsername(values url.Values, field string) (string, error) {
	v, err := Scalar(values, field)
	if err != nil {
		return "", err
	}
	if err := validate.Var(v, usernameLookupRule); err != nil {
		return "", &Failure{Fields: fieldErrors(err, field)}
	}
	return v, nil
}

// SubscribeEmail はメール購読フォームの email を検証します（必須チェックのみ）。
func SubscribeEmail(values url.Values) (string, error) {
	v, err := Scalar(values, "email")
	if err != nil {
		return "", err
	}
	if err := validate.Var(v, RuleRequired); err != nil {
		return "", &Failure{Fields: fieldErrors(err, "email")}
	}
	return v, nil
}

func fieldErrors(err error, field string) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: field, Rule: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		name := field
		if name == "" {
			name = fe.Field()
		}
		out = append(out, FieldError{Field: name, Rule: fe.Tag()})
	}
	return out
}

// dedupe は同じフィールドの失敗を1つにまとめます（スカラー違反を優先）。
func dedupe(in []FieldError) []FieldError {
	seen := make(map[string]int, len(in))
	out := make([]FieldError, 0, len(in))
	for _, fe := range in {
		if i, ok := seen[fe.Field]; ok {
			if fe.Rule == RuleScalar {
				out[i] = fe
			}
			continue
		}
		seen[fe.Field] = len(out)
		out = append(out, fe)
	}
	return out
}
