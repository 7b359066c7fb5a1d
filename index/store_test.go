package index

import "testing"

func TestCollectionName(t *testing.T) {
	cases := map[string]string{
		"acme/widgets":  "repo__acme__widgets",
		"Acme/Widgets":  "repo__acme__widgets",
		"org/repo-name": "repo__org__repo-name",
	}
	for in, want := range cases {
		if got := CollectionName(in); got != want {
			t.Errorf("CollectionName(%q) = %q, want %q", in, got, want)
		}
	}
}
