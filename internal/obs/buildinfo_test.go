package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/healthz", "/healthz"},
		{"/v1/projects", "/v1/projects"},
		{"/v1/projects/01J5X2", "/v1/projects/:id"},
		{"/v1/projects/01J5X2/archive", "/v1/projects/:id/archive"},
		{"/v1/transactions/01J5X2/split", "/v1/transactions/:id/split"},
		{"/v1/shared/reimbursements", "/v1/shared/:id"},
		{"/v1/teams/01J5X2?include=archived", "/v1/teams/:id"},
		{"/v1/info", "/v1/info"},
	}
	for _, c := range cases {
		if got := CanonicalPath(c.in); got != c.want {
			t.Errorf("CanonicalPath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
