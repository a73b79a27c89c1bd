package validate

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	v, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return v
}

func TestScalar(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		want      string
		injection bool
		missing   bool
	}{
		{name: "plain", query: "user=alice", want: "alice"},
		{name: "empty value is still scalar", query: "user=", want: ""},
		{name: "missing", query: "other=1", missing: true},
		{name: "operator map", query: "user[$ne]=x", injection: true},
		{name: "operator map with scalar", query: "user=alice&user[$gt]=", injection: true},
		{name: "array brackets", query: "user[]=a", injection: true},
		{name: "repeated", query: "user=a&user=b", injection: true},
		{name: "similar name is ignored", query: "username[$ne]=x&user=bob", want: "bob"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Scalar(mustQuery(t, tc.query), "user")
			switch {
			case tc.injection:
				require.Error(t, err)
				assert.True(t, IsInjection(err))
			case tc.missing:
				require.Error(t, err)
				assert.True(t, IsMissing(err))
				assert.False(t, IsInjection(err))
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestSignupValid(t *testing.T) {
	form, err := Signup(mustQuery(t, "username=alice&email=a%40b.com&password=pw123456"))
	require.NoError(t, err)
	assert.Equal(t, SignupForm{Username: "alice", Email: "a@b.com", Password: "pw123456"}, form)
}

func TestSignupFailures(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
		rule  string
	}{
		{"missing username", "email=a%40b.com&password=pw", "username", "required"},
		{"username not alphanumeric", "username=al+ice&email=a%40b.com&password=pw", "username", "alphanum"},
		{"username too long", "username=" + strings.Repeat("a", 21) + "&email=a%40b.com&password=pw", "username", "max"},
		{"bad email", "username=alice&email=nope&password=pw", "email", "email"},
		{"password too long", "username=alice&email=a%40b.com&password=" + strings.Repeat("p", 21), "password", "max"},
		{"password over 72 bytes", "username=alice&email=a%40b.com&password=" + url.QueryEscape(strings.Repeat("😀", 20)), "password", RuleMaxBytes},
		{"operator-shaped username", "username[$ne]=x&email=a%40b.com&password=pw", "username", RuleScalar},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			form, err := Signup(mustQuery(t, tc.query))
			require.Error(t, err)
			assert.Equal(t, SignupForm{}, form, "no partial form on failure")

			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Contains(t, f.Fields, FieldError{Field: tc.field, Rule: tc.rule})
		})
	}
}

func TestSignupPasswordAtByteLimit(t *testing.T) {
	pw := strings.Repeat("😀", 18)
	form, err := Signup(url.Values{"username": {"alice"}, "email": {"a@b.com"}, "password": {pw}})
	require.NoError(t, err)
	assert.Len(t, form.Password, 72)
}

func TestSignupReportsScalarOnceForField(t *testing.T) {
	_, err := Signup(mustQuery(t, "username[$ne]=x&email=a%40b.com&password=pw"))

	var f *Failure
	require.ErrorAs(t, err, &f)
	count := 0
	for _, fe := range f.Fields {
		if fe.Field == "username" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLookupUsername(t *testing.T) {
	got, err := LookupUsername(mustQuery(t, "username=alice"), "username")
	require.NoError(t, err)
	assert.Equal(t, "alice", got)

	_, err = LookupUsername(mustQuery(t, "username="+strings.Repeat("x", 21)), "username")
	require.Error(t, err)
	assert.False(t, IsInjection(err))

	_, err = LookupUsername(mustQuery(t, "username="), "username")
	require.Error(t, err)
	assert.True(t, IsMissing(err))

	_, err = LookupUsername(mustQuery(t, "username[$ne]=x"), "username")
	require.Error(t, err)
	assert.True(t, IsInjection(err))
}

func TestSubscribeEmail(t *testing.T) {
	got, err := SubscribeEmail(mustQuery(t, "email=someone"))
	require.NoError(t, err)
	assert.Equal(t, "someone", got)

	_, err = SubscribeEmail(mustQuery(t, "email="))
	assert.True(t, IsMissing(err))

	_, err = SubscribeEmail(url.Values{})
	assert.True(t, IsMissing(err))
}

func TestFailureErrorMessage(t *testing.T) {
	f := &Failure{Fields: []FieldError{{"username", "max"}, {"email", "email"}}}
	assert.Equal(t, "validation failed: username(max), email(email)", f.Error())
}
