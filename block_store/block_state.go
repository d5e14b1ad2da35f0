/***************************************************************
 *
 * Copyright (C) 2026, HTTPFS Project Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package block_store

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// blockState tracks which block numbers of each resource the store holds,
// as one roaring bitmap per resource URL.  It answers membership and count
// queries without touching the database.
type blockState struct {
	mu        sync.Mutex
	resources map[string]*roaring.Bitmap
}

func newBlockState() *blockState {
	return &blockState{resources: make(map[string]*roaring.Bitmap)}
}

func (s *blockState) add(key BlockKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bitmap, ok := s.resources[key.URL]
	if !ok {
		bitmap = roaring.New()
		s.resources[key.URL] = bitmap
	}
	bitmap.Add(uint32(key.Num))
}

func (s *blockState) remove(key BlockKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bitmap, ok := s.resources[key.URL]
	if !ok {
		return
	}
	bitmap.Remove(uint32(key.Num))
	if bitmap.IsEmpty() {
		delete(s.resources, key.URL)
	}
}

func (s *blockState) contains(key BlockKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	bitmap, ok := s.resources[key.URL]
	return ok && bitmap.Contains(uint32(key.Num))
}

func (s *blockState) count(url string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	bitmap, ok := s.resources[url]
	if !ok {
		return 0
	}
	return bitmap.GetCardinality()
}
