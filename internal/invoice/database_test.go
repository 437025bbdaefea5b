package invoice

import (
	"encoding/json"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-parser/internal/scanning"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newRun := func(id string, created time.Time) *Run {
		return &Run{
			ID:        id,
			Filename:  id + ".pdf",
			Kind:      scanning.KindPDF,
			Status:    StatusNormalizing,
			CreatedAt: created,
			UpdatedAt: created,
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveRun", func() {
		var (
			run *Run
			err error
		)

		BeforeEach(func() {
			run = newRun("test-id", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveRun(run)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the run to the database", func() {
				saved, getErr := db.GetRun("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Filename).To(Equal("test-id.pdf"))
				Expect(saved.Status).To(Equal(StatusNormalizing))
			})
		})

		When("the run is saved again with a new status", func() {
			JustBeforeEach(func() {
				run.Status = StatusDone
				run.Result = &Result{
					RunID:   "test-id",
					Record:  NewRecord(map[string]any{"total": json.Number("38.50")}),
					Summary: "summary",
					CSV:     "a,b",
					Pages:   2,
				}
				Expect(db.SaveRun(run)).To(Succeed())
			})

			It("should replace the stored run", func() {
				saved, getErr := db.GetRun("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Status).To(Equal(StatusDone))
				Expect(saved.Result.Pages).To(Equal(2))
			})

			It("should keep numbers as written", func() {
				saved, getErr := db.GetRun("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Result.Record.Map()).To(HaveKeyWithValue("total", json.Number("38.50")))
			})
		})
	})

	Describe("GetRun", func() {
		When("the run does not exist", func() {
			It("should return ErrRunNotFound", func() {
				_, err := db.GetRun("missing")
				Expect(err).To(MatchError(ErrRunNotFound))
			})
		})
	})

	Describe("ListRuns", func() {
		When("there are no runs", func() {
			It("should return an empty slice", func() {
				runs, err := db.ListRuns()
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).NotTo(BeNil())
				Expect(runs).To(BeEmpty())
			})
		})

		When("there are runs", func() {
			BeforeEach(func() {
				base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
				Expect(db.SaveRun(newRun("b", base.Add(time.Hour)))).To(Succeed())
				Expect(db.SaveRun(newRun("a", base))).To(Succeed())
				Expect(db.SaveRun(newRun("c", base.Add(2*time.Hour)))).To(Succeed())
			})

			It("should return them newest first", func() {
				runs, err := db.ListRuns()
				Expect(err).NotTo(HaveOccurred())
				ids := make([]string, len(runs))
				for i, r := range runs {
					ids[i] = r.ID
				}
				Expect(ids).To(Equal([]string{"c", "b", "a"}))
			})
		})
	})

	Describe("DeleteRun", func() {
		BeforeEach(func() {
			Expect(db.SaveRun(newRun("test-id", time.Now()))).To(Succeed())
		})

		It("should remove the run", func() {
			Expect(db.DeleteRun("test-id")).To(Succeed())
			_, err := db.GetRun("test-id")
			Expect(err).To(MatchError(ErrRunNotFound))
		})

		When("the run does not exist", func() {
			It("should return ErrRunNotFound", func() {
				Expect(db.DeleteRun("missing")).To(MatchError(ErrRunNotFound))
			})
		})
	})

	Describe("persistence", func() {
		It("should keep runs across reopen", func() {
			Expect(db.SaveRun(newRun("kept", time.Now()))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			reopened, err := NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
			db = reopened

			run, err := db.GetRun("kept")
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Kind).To(Equal(scanning.KindPDF))
		})
	})
})
