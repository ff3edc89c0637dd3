// Package identity derives rotating, human-shareable connection addresses
// from display names.
//
// An address is a lowercase slug of the display name joined with a four
// digit suffix, for example "alice_4821". The suffix is computed from a
// stable hash of the slug and a calendar period index, so the same name
// yields the same address for the length of a rotation period (three
// days) and a fresh one afterwards. Derivation is a pure function: two
// nodes that know a display name can compute the same address without
// coordination.
package identity
