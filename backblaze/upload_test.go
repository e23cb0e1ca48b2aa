// Copyright 2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package backblaze_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/kpi-refresh/backblaze"
)

var _ = Describe("Upload", func() {
	It("fails before contacting backblaze when the artifact is missing", func() {
		fn := filepath.Join(GinkgoT().TempDir(), "missing.csv")
		err := backblaze.Upload(fn, "kpi-artifacts", "2025-03-14")
		Expect(err).ToNot(BeNil())
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})

var _ = Describe("UploadAll", func() {
	It("skips empty artifact names", func() {
		Expect(backblaze.UploadAll([]string{""}, "kpi-artifacts", "2025-03-14")).To(BeNil())
	})

	It("attempts every file and reports the first error", func() {
		dir := GinkgoT().TempDir()
		err := backblaze.UploadAll([]string{
			filepath.Join(dir, "a.csv"),
			filepath.Join(dir, "b.csv"),
		}, "kpi-artifacts", "2025-03-14")
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})
