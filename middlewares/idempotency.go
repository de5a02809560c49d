package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"time"

	"syncledger-backend/utils"

	"github.com/gofiber/fiber/v2"
)

// replayEntry stores the first completed response for an Idempotency-Key.
// Status 0 means a request with this key is still in flight.
type replayEntry struct {
	RequestHash string
	Status      int
	Body        []byte
	CreatedAt   time.Time
}

// replayStore is process-local on purpose: idempotency replay has to work
// in every ledger mode, including simulated, where no database exists.
// The ledger's own duplicate-key invariant is what protects the record
// store across processes; this guard only absorbs client retries.
type replayStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*replayEntry
}

func newReplayStore(ttl time.Duration) *replayStore {
	return &replayStore{ttl: ttl, entries: make(map[string]*replayEntry)}
}

func (s *replayStore) sweep(now time.Time) {
	for k, e := range s.entries {
		if now.Sub(e.CreatedAt) > s.ttl {
			delete(s.entries, k)
		}
	}
}

// Replay TTL defaults to a day; tune via IDEMPOTENCY_TTL_SECONDS.
var defaultReplays = newReplayStore(
	time.Duration(utils.ParseIntDefault(os.Getenv("IDEMPOTENCY_TTL_SECONDS"), 86400)) * time.Second)

// Idempotency processes Idempotency-Key for mutating HTTP methods. The
// first completed response under a key is stored and replayed verbatim;
// reusing a key with a different request body is a conflict.
func Idempotency() fiber.Handler {
	return idempotencyWith(defaultReplays)
}

func idempotencyWith(store *replayStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get("Idempotency-Key"))
		if key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Idempotency-Key too long",
				"error":   "Idempotency-Key too long",
			})
		}

		accountID, _ := c.Locals("accountID").(string)

		// Deterministic request hash: method|path|body|account
		h := sha256.New()
		h.Write([]byte(method))
		h.Write([]byte{'\n'})
		h.Write([]byte(c.OriginalURL()))
		h.Write([]byte{'\n'})
		h.Write(c.Body())
		h.Write([]byte{'\n'})
		h.Write([]byte(accountID))
		reqHash := hex.EncodeToString(h.Sum(nil))

		// ---- Phase 1: replay a stored response or reserve the key
		store.mu.Lock()
		store.sweep(time.Now())
		existing, ok := store.entries[key]
		if ok && existing.RequestHash != reqHash {
			store.mu.Unlock()
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Idempotency-Key reuse with different request",
				"error":   "Idempotency-Key reuse with different request",
			})
		}
		if ok && existing.Status != 0 {
			status := existing.Status
			body := append([]byte(nil), existing.Body...)
			store.mu.Unlock()
			c.Status(status)
			return c.Send(body)
		}
		if !ok {
			store.entries[key] = &replayEntry{RequestHash: reqHash, CreatedAt: time.Now()}
		}
		// Pending/in-progress: let the request run.
		store.mu.Unlock()

		if err := c.Next(); err != nil {
			return err
		}

		// ---- Phase 2: store the completed response
		store.mu.Lock()
		if e, ok := store.entries[key]; ok && e.Status == 0 {
			e.Status = c.Response().StatusCode()
			e.Body = append([]byte(nil), c.Response().Body()...)
		}
		store.mu.Unlock()

		return nil
	}
}
