// Command reverie-backup copies the data files aside and manages the
// resulting backup history.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/scrypster/reverie/internal/backup"
	"github.com/scrypster/reverie/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file overlaying the environment")
	dataDir    = flag.String("data-dir", "", "Data directory to back up (overrides config)")
	backupDir  = flag.String("backup-dir", "", "Backup directory path (default: <data-dir>/backups)")
	keep       = flag.Int("keep", 0, "Prune backups down to the N newest and exit")
	listCmd    = flag.Bool("list", false, "List all available backups and exit")
)

// dataFiles are the store files a backup run copies when present.
var dataFiles = []string{"memory.jsonl", "experiences.jsonl", "reverie.db"}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *configPath != "" {
		if err := cfg.ApplyFile(*configPath); err != nil {
			log.Fatalf("Failed to apply config file: %v", err)
		}
	}

	dataDirFinal := cfg.Storage.DataPath
	if *dataDir != "" {
		dataDirFinal = *dataDir
	}

	backupDirFinal := filepath.Join(dataDirFinal, "backups")
	if *backupDir != "" {
		backupDirFinal = *backupDir
	}

	if *listCmd {
		listBackups(backupDirFinal)
		return
	}

	if *keep > 0 {
		removed, err := backup.Prune(backupDirFinal, *keep)
		if err != nil {
			log.Fatalf("Failed to prune backups: %v", err)
		}
		fmt.Printf("Pruned %d backup(s), kept the %d newest\n", removed, *keep)
		return
	}

	created := 0
	for _, name := range dataFiles {
		src := filepath.Join(dataDirFinal, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		info, err := backup.BackupFile(src, backupDirFinal)
		if err != nil {
			log.Fatalf("Failed to back up %s: %v", src, err)
		}
		fmt.Printf("Backed up %s -> %s (%d bytes)\n", src, info.Path, info.Size)
		created++
	}
	if created == 0 {
		log.Fatalf("No data files found in %s", dataDirFinal)
	}
}

func listBackups(dir string) {
	backups, err := backup.ListBackups(dir)
	if err != nil {
		log.Fatalf("Failed to list backups: %v", err)
	}
	if len(backups) == 0 {
		fmt.Println("No backups found")
		return
	}
	for _, b := range backups {
		fmt.Printf("%s  %10d bytes  %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"), b.Size, filepath.Base(b.Path))
	}
}
