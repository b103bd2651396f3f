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


// Package retrieval answers natural-language questions from stored detections.
//
// A Retriever embeds the question, pulls the nearest detections from the
// aggregate collection, renders them as numbered context lines and asks the
// answer generator for a short reply grounded in that context:
//
//	Detection 1: label=person, confidence=0.912, bbox={"x":1,"y":2,"width":3,"height":4}, timestamp=2025-03-01T10:00:00Z
//
// Failures past the question are reported in the returned Response as
// user-visible text rather than as errors, so an HTTP caller always gets a
// context and an answer string back.
package retrieval
