// Package presence tracks which peers have announced themselves on the
// broadcast address. The table is purely in memory: it rebuilds from
// broadcast traffic after every restart and is advisory only, since the
// signaling channel neither confirms delivery nor replays missed
// envelopes.
package presence
