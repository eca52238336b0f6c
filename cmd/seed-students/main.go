package main

import (
	"context"
	"fmt"
	"time"

	"github.com/iobuilds/learn-lanka-sub000/internal/config"
	"github.com/iobuilds/learn-lanka-sub000/internal/database"
	"github.com/iobuilds/learn-lanka-sub000/internal/logger"
	"github.com/iobuilds/learn-lanka-sub000/internal/model"
	"github.com/iobuilds/learn-lanka-sub000/internal/repository"
	"github.com/iobuilds/learn-lanka-sub000/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	studentService := service.NewStudentService(studentRepo)

	fmt.Println("=== Seeding 50 Students ===")

	names := []string{
		"Nimal Perera", "Kamala Silva", "Sunil Fernando", "Dilani Jayawardena", "Ruwan Bandara",
		"Sanduni Wickramasinghe", "Kasun Rajapaksa", "Nadeesha Gunawardena", "Tharindu De Silva", "Ishara Weerasinghe",
		"Chamara Dissanayake", "Hansika Amarasinghe", "Lahiru Senanayake", "Madhavi Ratnayake", "Pasindu Herath",
		"Sachini Wijesekara", "Dinesh Karunaratne", "Tharushi Ekanayake", "Amila Jayasinghe", "Nethmi Samaraweera",
		"Buddhika Liyanage", "Kavindi Abeysekara", "Roshan Gamage", "Dulani Peiris", "Isuru Wijeratne",
		"Shanika Kumarasinghe", "Janith Samarasinghe", "Umesha Rathnayake", "Gayan Mendis", "Piumi Weerakoon",
		"Nuwan Attanayake", "Hiruni Pathirana", "Sahan Wickramaratne", "Dinithi Alwis", "Kalana Seneviratne",
		"Vindya Munasinghe", "Ravindu Kulatunga", "Sewwandi Ranasinghe", "Malith Dharmadasa", "Anjali Gunasekara",
		"Supun Edirisinghe", "Chathurika Basnayake", "Yasas Illangakoon", "Nimesha Wanniarachchi", "Dasun Premaratne",
		"Imesha Hettiarachchi", "Ramesh Thilakaratne", "Oshadi Balasuriya", "Akila Weerawardena", "Sithara Kodikara",
	}

	mediums := []model.Medium{model.MediumSinhala, model.MediumEnglish, model.MediumTamil}

	successCount := 0
	for i := 0; i < 50; i++ {
		student := &model.Student{
			AdmissionNo:  fmt.Sprintf("LL%05d", i+1),
			Name:         names[i],
			Phone:        fmt.Sprintf("07712%05d", i+1),
			Medium:       mediums[i%len(mediums)],
			Grade:        9 + i%3, // Grades 9, 10, 11
			PasswordHash: "lanka1234",
		}

		err := studentService.Create(ctx, student)
		if err != nil {
			fmt.Printf("Error creating student %s (%s): %v\n", student.Name, student.AdmissionNo, err)
		} else {
			successCount++
			if (i+1)%10 == 0 {
				fmt.Printf("Created %d students...\n", i+1)
			}
		}
	}

	fmt.Printf("\nSeed completed! Successfully added %d/50 students.\n", successCount)
}
