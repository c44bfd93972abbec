/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package storage persists the reader state map.
// The canonical backend is a single JSON file (memos.json) written transactionally with timestamped
// backups; a corrupt file is recovered from the latest backup. SQLite and Postgres backends hold the
// same map in normalized tables, and the SQLite one adds full-text memo search. The rendered page
// cache also lives in SQLite and is disposable.
package storage
