package kv

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/cedar/lib/table"
)

// --------------------------------------------------------------------------
// String Commands
// --------------------------------------------------------------------------

func (s *storeImpl) Append(key, value string) (int, error) {
	s.count("append")

	now := s.nowMs()
	length := 0

	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		rec := table.Record{Value: value}
		if loaded && !old.Expired(now) {
			// concatenate, keeping the current deadline; the pending
			// removal timer stays armed for it
			rec = table.Record{Value: old.Value + value, ExpireAt: old.ExpireAt}
		}
		length = len(rec.Value)
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})

	return length, nil
}

func (s *storeImpl) Incr(key string) (string, error) {
	s.count("incr")
	return s.incrBy(key, 1)
}

func (s *storeImpl) IncrBy(key string, step int64) (string, error) {
	s.count("incrby")
	return s.incrBy(key, step)
}

func (s *storeImpl) Decr(key string) (string, error) {
	s.count("decr")
	return s.incrBy(key, -1)
}

// incrBy parses the current value as an integer (absent keys count as 0),
// adds step and stores the result. The store goes through the plain set
// path, so any TTL on the key is cleared.
func (s *storeImpl) incrBy(key string, step int64) (string, error) {
	now := s.nowMs()

	var (
		out     string
		typeErr error
	)

	s.sched.Cancel(key)
	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		cur := int64(0)
		if loaded && !old.Expired(now) {
			v, err := strconv.ParseInt(old.Value, 10, 64)
			if err != nil {
				typeErr = NewError(RetCTypeMismatch, fmt.Sprintf("value of key %q is not an integer", key))
				return old, table.OpKeep
			}
			cur = v
		}

		out = strconv.FormatInt(cur+step, 10)
		rec := table.Record{Value: out}
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})

	if typeErr != nil {
		return "", typeErr
	}
	return out, nil
}

func (s *storeImpl) MGet(keys ...string) []*string {
	s.count("mget")

	now := s.nowMs()
	out := make([]*string, len(keys))
	for i, key := range keys {
		if rec, ok := s.tbl.Get(key, now); ok {
			value := rec.Value
			out[i] = &value
		}
	}
	return out
}

func (s *storeImpl) GetSet(key, value string) (string, error) {
	s.count("getset")

	now := s.nowMs()

	var (
		prior string
		found bool
	)

	s.sched.Cancel(key)
	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		if loaded && !old.Expired(now) {
			prior = old.Value
			found = true
		}
		rec := table.Record{Value: value}
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})

	if !found {
		return "", NewError(RetCNotFound, fmt.Sprintf("key %q not found", key))
	}
	return prior, nil
}

func (s *storeImpl) Strlen(key string) int {
	s.count("strlen")

	rec, ok := s.tbl.Get(key, s.nowMs())
	if !ok {
		return 0
	}
	return len(rec.Value)
}

func (s *storeImpl) GetRange(key string, start, end int) string {
	s.count("getrange")

	rec, ok := s.tbl.Get(key, s.nowMs())
	if !ok {
		return ""
	}

	n := len(rec.Value)
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end = n + end
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n || end < 0 {
		return ""
	}
	return rec.Value[start : end+1]
}

func (s *storeImpl) SetRange(key string, offset int, value string) (int, error) {
	s.count("setrange")

	now := s.nowMs()
	length := 0

	s.tbl.Update(key, func(old table.Record, loaded bool) (table.Record, table.Op) {
		cur := ""
		expireAt := int64(0)
		if loaded && !old.Expired(now) {
			cur = old.Value
			expireAt = old.ExpireAt
		}

		if value == "" {
			// nothing to write, report the current length unchanged
			length = len(cur)
			return old, table.OpKeep
		}

		pos := offset
		if pos < 0 {
			pos = len(cur) + pos
			if pos < 0 {
				pos = 0
			}
		}

		buf := []byte(cur)
		if end := pos + len(value); end > len(buf) {
			// grow with NUL padding up to the end of the written window;
			// shorter writes keep the trailing content
			grown := make([]byte, end)
			copy(grown, buf)
			buf = grown
		}
		copy(buf[pos:], value)

		rec := table.Record{Value: string(buf), ExpireAt: expireAt}
		length = len(rec.Value)
		s.jrnl.Append(key, &rec)
		return rec, table.OpStore
	})

	return length, nil
}
