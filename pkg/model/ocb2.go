package model

// CryptStats mirrors the counters a Session reports in Ping/UserStats
// messages (§3 OCB2 state: good/late/lost/resync). The actual cipher
// state lives in pkg/cryptstate.State; this is the read-only snapshot
// handed to the protocol layer.
type CryptStats struct {
	Good   uint32
	Late   uint32
	Lost   uint32
	Resync uint32
}
