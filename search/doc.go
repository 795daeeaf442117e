// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package search answers natural-language queries over indexed Memories.
//
// A query is embedded, the nearest memories are retrieved from the vector
// index with an over-fetch margin, and the pool is reranked by a language
// model. The rerank score and the vector score are fused into the final
// ranking. Any reranker failure degrades to plain vector ordering rather
// than failing the query.
package search
