package types

import (
	"fmt"
	"os"
)

// UserIdentity is the (uid, gid, supplementary groups) triple a mount request
// is made on behalf of. The mount layer only carries it; privilege switching
// code is the consumer.
type UserIdentity struct {
	UID    int
	GID    int
	Groups []int
}

// CurrentIdentity returns the identity of the calling process.
func CurrentIdentity() UserIdentity {
	groups, err := os.Getgroups()
	if err != nil {
		groups = nil
	}
	return UserIdentity{
		UID:    os.Getuid(),
		GID:    os.Getgid(),
		Groups: groups,
	}
}

func (u UserIdentity) String() string {
	return fmt.Sprintf("%d:%d%v", u.UID, u.GID, u.Groups)
}
