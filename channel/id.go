package channel

import "fmt"

// ClientKey identifies a client process
type ClientKey struct {
	TGID int32 `json:"tgid"`
	UID  int32 `json:"uid"`
}

func (k ClientKey) String() string {
	return fmt.Sprintf("tgid=%d uid=%d", k.TGID, k.UID)
}

// ChannelID locates a channel: which group, which slot in it
type ChannelID struct {
	GroupID int32 `json:"group_id"`
	Slot    int32 `json:"slot"`
}

func (id ChannelID) String() string {
	return fmt.Sprintf("%d/%d", id.GroupID, id.Slot)
}
