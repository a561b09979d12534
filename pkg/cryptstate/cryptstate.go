// Package cryptstate implements the OCB2-AES128 authenticated cipher
// used for Mumble voice datagrams: per-direction 128-bit nonces
// incremented by one per packet, a 4-byte truncated tag, and a
// +/-30-packet replay window for out-of-order UDP delivery.
package cryptstate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"sync"
	"time"
)

const (
	// KeySize is the AES-128 key size in bytes.
	KeySize = 16
	// BlockSize is the AES block size in bytes, also the nonce size.
	BlockSize = 16
	// TagSize is the number of authentication tag bytes transmitted
	// on the wire (truncated from the full AES block).
	TagSize = 4
	// ReplayWindow bounds how far behind the expected nonce a packet
	// may arrive and still be accepted as "late" rather than rejected.
	ReplayWindow = 30
)

// DecryptResult classifies the outcome of a Decrypt call.
type DecryptResult int

const (
	// Ok means the packet decrypted with a valid tag at the expected
	// (fast-path, +1) nonce.
	Ok DecryptResult = iota
	// Late means the packet decrypted with a valid tag but arrived
	// out of order, within the replay window.
	Late
	// Replayed means a packet with this nonce was already accepted.
	Replayed
	// Invalid means the authentication tag did not match.
	Invalid
)

var (
	// ErrShortCiphertext is returned when a frame is too small to
	// contain the head bytes and the trailing tag.
	ErrShortCiphertext = errors.New("cryptstate: ciphertext too short")
)

// State holds one direction-pair of OCB2-AES128 key material plus the
// decrypt-side replay bookkeeping. A single State is shared by both
// directions of one session's voice traffic, matching Mumble's wire
// design: one key, two independent 128-bit IVs (local/remote).
type State struct {
	mu sync.Mutex

	key       [KeySize]byte
	encryptIV [BlockSize]byte
	decryptIV [BlockSize]byte

	block cipher.Block

	// decryptCounter is the logical sequence position decryptIV
	// represents: decryptIV always equals iv-at-session-start advanced
	// by decryptCounter increments. accepted records which counters
	// within the trailing ReplayWindow have already been consumed, so
	// a duplicate within the window is rejected even though its tag
	// would validate.
	decryptCounter uint64
	accepted       map[uint64]struct{}

	Good       uint32
	Late       uint32
	Lost       uint32
	Resync     uint32
	RemoteGood uint32
	RemoteLate uint32
	RemoteLost uint32

	LastGoodTime int64
}

// New allocates a zeroed State. Call Init or GenerateKey before use.
func New() *State {
	return &State{}
}

// GenerateKey creates fresh random key and IV material, as done on the
// server side of a new session or on CryptSetup-driven resync.
func (s *State) GenerateKey() error {
	var key, encIV, decIV [16]byte
	if _, err := rand.Read(key[:]); err != nil {
		return err
	}
	if _, err := rand.Read(encIV[:]); err != nil {
		return err
	}
	if _, err := rand.Read(decIV[:]); err != nil {
		return err
	}
	return s.Init(key[:], encIV[:], decIV[:])
}

// Init sets up the cipher with an explicit key and both IVs. localIV is
// this side's encrypt nonce; remoteIV is the nonce we expect the peer
// to start encrypting from.
func (s *State) Init(key, localIV, remoteIV []byte) error {
	if len(key) != KeySize {
		return errors.New("cryptstate: bad key size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.key[:], key)
	copy(s.encryptIV[:], localIV)
	copy(s.decryptIV[:], remoteIV)
	s.block = block
	s.decryptCounter = 0
	s.accepted = map[uint64]struct{}{0: {}}
	return nil
}

// Key returns the current AES-128 key.
func (s *State) Key() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := make([]byte, KeySize)
	copy(k, s.key[:])
	return k
}

// EncryptIV returns the current local (encrypt) IV.
func (s *State) EncryptIV() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := make([]byte, BlockSize)
	copy(iv, s.encryptIV[:])
	return iv
}

// DecryptIV returns the current remote (decrypt) IV.
func (s *State) DecryptIV() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := make([]byte, BlockSize)
	copy(iv, s.decryptIV[:])
	return iv
}

// Overhead is the number of extra bytes Encrypt adds: 1 IV-low byte +
// TagSize tag bytes.
func (s *State) Overhead() int {
	return 1 + TagSize
}

func xorBlock(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

func incrementIV(iv *[16]byte) {
	for i := range iv {
		iv[i]++
		if iv[i] != 0 {
			break
		}
	}
}

// ocbCrypt implements the OCB2 offset-codebook encryption (encrypt
// true) or decryption (encrypt false) of its input under the block
// cipher and nonce, returning the output and the full 16-byte
// authentication tag computed over the plaintext. It is a direct, unoptimized
// transcription of the OCB2 algorithm sufficient for 16-byte-aligned
// and final-partial-block Mumble voice frames.
func ocbCrypt(block cipher.Block, nonce [16]byte, plain []byte, encrypt bool) (out []byte, tag [16]byte) {
	var checksum [16]byte
	var delta [16]byte
	block.Encrypt(delta[:], nonce[:])

	out = make([]byte, len(plain))
	remaining := len(plain)
	offset := 0
	for remaining >= BlockSize {
		doubleBlock(&delta)
		var tmp [16]byte
		xorBlock(tmp[:], delta[:], plain[offset:offset+BlockSize])
		var enc [16]byte
		if encrypt {
			block.Encrypt(enc[:], tmp[:])
			xorBlock(out[offset:offset+BlockSize], enc[:], delta[:])
			xorBlock(checksum[:], checksum[:], plain[offset:offset+BlockSize])
		} else {
			block.Decrypt(enc[:], tmp[:])
			xorBlock(out[offset:offset+BlockSize], enc[:], delta[:])
			xorBlock(checksum[:], checksum[:], out[offset:offset+BlockSize])
		}
		offset += BlockSize
		remaining -= BlockSize
	}

	if remaining > 0 {
		doubleBlock(&delta)
		var pad [16]byte
		block.Encrypt(pad[:], delta[:])
		if encrypt {
			xorBlock(out[offset:offset+remaining], plain[offset:offset+remaining], pad[:remaining])
			var padded [16]byte
			copy(padded[:], plain[offset:offset+remaining])
			padded[remaining] = 0x80
			xorBlock(checksum[:], checksum[:], padded[:])
		} else {
			xorBlock(out[offset:offset+remaining], plain[offset:offset+remaining], pad[:remaining])
			var padded [16]byte
			copy(padded[:], out[offset:offset+remaining])
			padded[remaining] = 0x80
			xorBlock(checksum[:], checksum[:], padded[:])
		}
		doubleBlock(&delta)
	}

	var tagInput [16]byte
	xorBlock(tagInput[:], checksum[:], delta[:])
	block.Encrypt(tag[:], tagInput[:])
	return out, tag
}

// doubleBlock performs the GF(2^128) doubling used by OCB2 to derive
// successive per-block offsets from the base offset.
func doubleBlock(b *[16]byte) {
	carry := b[0] >> 7
	for i := 0; i < 15; i++ {
		b[i] = (b[i] << 1) | (b[i+1] >> 7)
	}
	b[15] <<= 1
	if carry != 0 {
		b[15] ^= 0x87
	}
}

// Encrypt produces head(1) || ciphertext || tag(TagSize) for plain,
// using and then advancing the local encrypt nonce by one.
func (s *State) Encrypt(plain []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	incrementIV(&s.encryptIV)
	cipherText, tag := ocbCrypt(s.block, s.encryptIV, plain, true)

	out := make([]byte, 0, 1+len(cipherText)+TagSize)
	out = append(out, s.encryptIV[0])
	out = append(out, cipherText...)
	out = append(out, tag[:TagSize]...)

	s.LastGoodTime = time.Now().Unix()
	return out
}

// Decrypt verifies and decrypts an OCB2 frame produced by Encrypt. It
// reconstructs the full remote nonce from the transmitted low byte and
// the locally stored decrypt IV, trying the fast path (remote nonce +
// 1) before searching the replay window. A nonce already consumed
// within the window is reported as Replayed without re-counting it as
// good or late.
func (s *State) Decrypt(frame []byte) (plain []byte, result DecryptResult, err error) {
	if len(frame) < 1+TagSize {
		return nil, Invalid, ErrShortCiphertext
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	head := frame[0]
	cipherText := frame[1 : len(frame)-TagSize]
	wantTag := frame[len(frame)-TagSize:]

	for _, cand := range s.candidateNonces(head) {
		p, tag := ocbCrypt(s.block, cand.iv, cipherText, false)
		if subtle.ConstantTimeCompare(tag[:TagSize], wantTag) != 1 {
			continue
		}

		if _, dup := s.accepted[cand.counter]; dup {
			return nil, Replayed, nil
		}
		s.markAccepted(cand.counter)

		if cand.fastPath {
			s.decryptIV = cand.iv
			s.decryptCounter = cand.counter
			s.Good++
			s.LastGoodTime = time.Now().Unix()
			return p, Ok, nil
		}
		if cand.counter > s.decryptCounter {
			// Arrived out of order but ahead of the last accepted
			// nonce: advance the base and count the gap as lost.
			s.Lost += uint32(cand.counter - s.decryptCounter - 1)
			s.decryptIV = cand.iv
			s.decryptCounter = cand.counter
		}
		s.Late++
		return p, Late, nil
	}

	s.Lost++
	return nil, Invalid, nil
}

type nonceCandidate struct {
	iv       [16]byte
	counter  uint64
	fastPath bool
}

// candidateNonces enumerates plausible remote nonces matching the
// transmitted low byte, fast path (expected+1) first, then the replay
// window on either side of the last accepted counter.
func (s *State) candidateNonces(head byte) []nonceCandidate {
	var out []nonceCandidate

	expected := s.decryptIV
	incrementIV(&expected)
	if expected[0] == head {
		out = append(out, nonceCandidate{iv: expected, counter: s.decryptCounter + 1, fastPath: true})
	}

	lo := int64(s.decryptCounter) - ReplayWindow
	if lo < 0 {
		lo = 0
	}
	hi := s.decryptCounter + ReplayWindow
	for c := uint64(lo); c <= hi; c++ {
		if c == s.decryptCounter+1 {
			continue // already tried as the fast path
		}
		cand := ivAtCounter(s.decryptIV, s.decryptCounter, c)
		if cand[0] == head {
			out = append(out, nonceCandidate{iv: cand, counter: c})
		}
	}
	return out
}

// ivAtCounter computes the IV that corresponds to logical position
// target, given that base represents baseCounter.
func ivAtCounter(base [16]byte, baseCounter, target uint64) [16]byte {
	iv := base
	if target >= baseCounter {
		for i := uint64(0); i < target-baseCounter; i++ {
			incrementIV(&iv)
		}
	} else {
		for i := uint64(0); i < baseCounter-target; i++ {
			decrementIV(&iv)
		}
	}
	return iv
}

func decrementIV(iv *[16]byte) {
	for i := range iv {
		if iv[i] != 0 {
			iv[i]--
			return
		}
		iv[i]--
	}
}

// markAccepted records counter as consumed and prunes any entries that
// have fallen outside the trailing replay window.
func (s *State) markAccepted(counter uint64) {
	if s.accepted == nil {
		s.accepted = make(map[uint64]struct{})
	}
	s.accepted[counter] = struct{}{}

	high := counter
	if s.decryptCounter > high {
		high = s.decryptCounter
	}
	for c := range s.accepted {
		if int64(high)-int64(c) > ReplayWindow {
			delete(s.accepted, c)
		}
	}
}

// RequestResync resets both IVs to fresh random values, as performed
// when a CryptSetup resync message is exchanged after repeated decrypt
// failures (§4.2, S6).
func (s *State) RequestResync() ([]byte, []byte, error) {
	var encIV, decIV [16]byte
	if _, err := rand.Read(encIV[:]); err != nil {
		return nil, nil, err
	}
	if _, err := rand.Read(decIV[:]); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	s.encryptIV = encIV
	s.decryptIV = decIV
	s.Resync++
	s.mu.Unlock()
	return encIV[:], decIV[:], nil
}
