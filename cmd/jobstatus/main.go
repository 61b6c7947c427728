// Command jobstatus is an operator CLI that prints the current
// normalization job queue, adapted from cmd/checkjobs/main.go's
// direct-GORM-connection reporting style but reading the real
// model.Job/model.JobChunk rows instead of shadow structs, since this
// CLI ships alongside the models it reports on.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahilchouksey/go-init-setup/model"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dbHost := envOrDefault("DB_HOST", "localhost")
	dbPort := envOrDefault("DB_PORT", "5432")
	dbUser := os.Getenv("DB_USER_NAME")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

	dbURL := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName)

	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	fmt.Println("========================================")
	fmt.Println("NORMALIZATION JOBS STATUS")
	fmt.Println("========================================")

	var jobs []model.Job
	if err := db.Order("created_at DESC").Limit(20).Find(&jobs).Error; err != nil {
		log.Fatalf("Failed to fetch jobs: %v", err)
	}

	if len(jobs) == 0 {
		fmt.Println("\nNo jobs found in database")
	}

	for _, job := range jobs {
		statusIcon := statusIconFor(job.Status)
		fmt.Printf("─────────────────────────────────────\n")
		fmt.Printf("%s Job ID: %d (user %d, model %s)\n", statusIcon, job.ID, job.UserID, job.Model)
		fmt.Printf("   Status: %s\n", job.Status)
		fmt.Printf("   Progress: %d%% (%d/%d chunks) — %s\n",
			job.ProgressPercent, job.CompletedChunks, job.TotalChunks, job.CurrentStep)
		fmt.Printf("   Credits: estimated=%d", job.EstimatedCredits)
		if job.ActualCredits != nil {
			fmt.Printf(" actual=%d", *job.ActualCredits)
		}
		fmt.Println()
		if job.ErrorCode != "" {
			fmt.Printf("   Error: %s — %s\n", job.ErrorCode, job.ErrorMessage)
		}

		var chunks []model.JobChunk
		db.Where("job_id = ?", job.ID).Order("chunk_index ASC").Find(&chunks)
		if len(chunks) > 0 {
			fmt.Printf("   Chunks (%d):\n", len(chunks))
			for _, c := range chunks {
				fmt.Printf("     [%d] pages %d-%d status=%s attempts=%d/%d\n",
					c.ChunkIndex, c.PageStart, c.PageEnd, c.Status, c.Attempts, c.MaxRetries)
				if c.LastErrorCode != "" {
					fmt.Printf("         last error: %s — %s\n", c.LastErrorCode, c.LastError)
				}
			}
		}
	}

	var active int64
	db.Model(&model.Job{}).Where("status IN ?", []model.JobStatus{model.JobStatusQueued, model.JobStatusProcessing}).Count(&active)
	fmt.Println("\n========================================")
	fmt.Printf("ACTIVE JOBS: %d\n", active)
	fmt.Println("========================================")
}

func statusIconFor(s model.JobStatus) string {
	switch s {
	case model.JobStatusCompleted:
		return "done:"
	case model.JobStatusFailed:
		return "fail:"
	case model.JobStatusProcessing:
		return "proc:"
	case model.JobStatusCancelled:
		return "cncl:"
	default:
		return "wait:"
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
