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


// Package parser extracts plain text from uploaded files.
//
// A Registry maps file extensions to Parser implementations. PDF files are
// handled by PDFParser, which extracts pages concurrently. Files with a text
// extension, or no extension at all, go through TextParser. Office and
// e-book formats are recognised as binary by IsBinary but have no parser,
// so Registry.Parse reports ErrUnsupportedFormat for them.
package parser
