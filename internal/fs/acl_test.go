package fs

import (
	"context"
	"errors"
	"testing"
	"time"
)

const cifsOutput = `REVISION:0x1
CONTROL:0x9404
OWNER:S-1-5-21-100-200-300-1001
GROUP:S-1-5-21-100-200-300-513
ACL:S-1-5-21-100-200-300-1001:ALLOWED/OI|CI/FULL
ACL:S-1-5-21-100-200-300-1002:ALLOWED/OI|CI/R
ACL:S-1-5-21-100-200-300-1002:ALLOWED/I/READ
ACL:S-1-5-21-100-200-300-1003:ALLOWED/0x0/0x1200a9
ACL:S-1-5-21-100-200-300-1004:DENIED/0x0/CHANGE
ACL:S-1-5-21-100-200-300-1005:DENIED/0x0/D
ACL:malformed
`

func TestParseCIFSACL(t *testing.T) {
	acl := ParseCIFSACL(cifsOutput)

	wantAllowed := []string{"S-1-5-21-100-200-300-1001", "S-1-5-21-100-200-300-1002"}
	if len(acl.Allowed) != len(wantAllowed) {
		t.Fatalf("Allowed = %v, want %v", acl.Allowed, wantAllowed)
	}
	for i := range wantAllowed {
		if acl.Allowed[i] != wantAllowed[i] {
			t.Errorf("Allowed[%d] = %s, want %s", i, acl.Allowed[i], wantAllowed[i])
		}
	}
	if len(acl.Denied) != 1 || acl.Denied[0] != "S-1-5-21-100-200-300-1004" {
		t.Errorf("Denied = %v", acl.Denied)
	}

	empty := ParseCIFSACL("")
	if empty.Allowed == nil || empty.Denied == nil || len(empty.Allowed)+len(empty.Denied) != 0 {
		t.Errorf("ParseCIFSACL(\"\") = %+v, want empty sets", empty)
	}
}

func TestCIFSResolver_Resolve(t *testing.T) {
	t.Run("runs getcifsacl on the path", func(t *testing.T) {
		var gotName string
		var gotArgs []string
		r := NewCIFSResolver(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("runner called without a deadline")
			}
			gotName, gotArgs = name, args
			return []byte(cifsOutput), nil
		}, time.Second)

		acl, err := r.Resolve(context.Background(), "/mnt/share/a b.txt")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if gotName != "getcifsacl" || len(gotArgs) != 1 || gotArgs[0] != "/mnt/share/a b.txt" {
			t.Errorf("ran %s %v", gotName, gotArgs)
		}
		if len(acl.Allowed) != 2 {
			t.Errorf("Allowed = %v", acl.Allowed)
		}
	})

	t.Run("propagates command failure", func(t *testing.T) {
		r := NewCIFSResolver(func(context.Context, string, ...string) ([]byte, error) {
			return nil, errors.New("exit status 1")
		}, 0)

		if _, err := r.Resolve(context.Background(), "/tmp/a.txt"); err == nil {
			t.Error("Resolve() expected error")
		}
	})
}
