package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "detail", status: 401, body: `{"detail":"Given token not valid for any token type"}`, want: "Given token not valid for any token type"},
		{name: "plain string", status: 400, body: `"Chat already accepted."`, want: "Chat already accepted."},
		{name: "list", status: 400, body: `["first","second"]`, want: "first, second"},
		{name: "field map sorted", status: 400, body: `{"username":["already exists"],"email":["invalid","taken"]}`, want: "email: invalid, taken | username: already exists"},
		{name: "non field errors unlabeled", status: 400, body: `{"non_field_errors":["passwords do not match"]}`, want: "passwords do not match"},
		{name: "field string", status: 400, body: `{"old_password":"Wrong password."}`, want: "old_password: Wrong password."},
		{name: "nested", status: 400, body: `{"profile":{"image":["too large"]}}`, want: "profile.image: too large"},
		{name: "message key", status: 500, body: `{"message":"boom"}`, want: "boom"},
		{name: "html page", status: 502, body: `<html>Bad Gateway</html>`, want: "Request failed (502 Bad Gateway)"},
		{name: "empty", status: 500, body: ``, want: "Request failed (500 Internal Server Error)"},
		{name: "empty object", status: 404, body: `{}`, want: "Request failed (404 Not Found)"},
		{name: "unknown status", status: 599, body: ``, want: "Request failed (599)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.status, []byte(tc.body))
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.want, got.Message)
		})
	}
}

func TestNormalizeKeepsFields(t *testing.T) {
	t.Parallel()

	got := Normalize(http.StatusBadRequest, []byte(`{"new_password":["too short","too common"]}`))
	require.Contains(t, got.Fields, "new_password")
	assert.Equal(t, []string{"too short", "too common"}, got.Fields["new_password"])
}

type noticeErr struct{}

func (noticeErr) Error() string       { return "internal text" }
func (noticeErr) UserMessage() string { return "Shown to user" }

func TestMessage(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Message(nil))
	assert.Equal(t, "Shown to user", Message(fmt.Errorf("wrapped: %w", noticeErr{})))
	assert.Equal(t, "Not allowed", Message(fmt.Errorf("call: %w", &Error{Status: 403, Message: "Not allowed"})))
	assert.Equal(t, "plain", Message(errors.New("plain")))

	var apiErr *Error
	require.ErrorAs(t, fmt.Errorf("x: %w", Normalize(401, nil)), &apiErr)
	assert.True(t, apiErr.Unauthorized())
}
