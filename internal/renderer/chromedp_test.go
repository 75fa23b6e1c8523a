package renderer

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/require"
)

func nodeWithAttrs(attrs ...string) *cdp.Node {
	return &cdp.Node{Attributes: attrs}
}

func TestNextControlDisabled(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		node     *cdp.Node
		disabled bool
	}{
		{"plain link", nodeWithAttrs("class", "next-page"), false},
		{"disabled attribute", nodeWithAttrs("class", "next", "disabled", ""), true},
		{"disabled class", nodeWithAttrs("class", "next disabled"), true},
		{"inactive class", nodeWithAttrs("class", "pagination-next inactive"), true},
		{"no attributes", nodeWithAttrs(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			control := &nextControl{node: tc.node}
			require.Equal(t, tc.disabled, control.Disabled())
		})
	}
}

func TestForwardCancelPropagates(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not canceled")
	}
}

func TestForwardCancelStopDetaches(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	stop()
	cancelParent()

	// stop returned before the parent was canceled, so the forward must
	// never fire, even though the parent is now done.
	require.NoError(t, child.Err())
	select {
	case <-child.Done():
		t.Fatal("child context canceled after detach")
	case <-time.After(50 * time.Millisecond):
	}
}
