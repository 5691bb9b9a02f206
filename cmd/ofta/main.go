package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skalibog/ofta/internal/analysis/aggregator"
	"github.com/skalibog/ofta/internal/collector"
	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/internal/engine"
	"github.com/skalibog/ofta/internal/exchange"
	"github.com/skalibog/ofta/internal/executor"
	"github.com/skalibog/ofta/internal/storage"
	"github.com/skalibog/ofta/internal/ui"
	"github.com/skalibog/ofta/pkg/logger"
	"github.com/skalibog/ofta/pkg/models"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Создаем контекст с возможностью отмены через горутину
	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище
	var store storage.Storage
	if cfg.Storage.Enabled {
		influx, err := storage.NewInfluxDBStorage(cfg.Storage)
		if err != nil {
			logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
		}
		store = influx
	} else {
		logger.Info("Хранилище выключено, решения не сохраняются")
		store = storage.NoopStorage{}
	}
	defer store.Close()

	// Инициализируем клиент биржи
	client := exchange.NewClient(cfg.OKX, cfg.Trading)

	// Собираем конвейер: анализ -> исполнение -> движок цикла
	analyzer := aggregator.NewAnalyzer(*cfg, store)
	exec := executor.NewExecutor(client, cfg.Trading)
	eng := engine.NewEngine(*cfg, client, analyzer, exec)

	// Инициализируем UI
	userInterface, err := ui.NewTermUI(cfg.UI, cfg.Trading.InstID)
	if err != nil {
		logger.Fatal("Ошибка инициализации пользовательского интерфейса", zap.Error(err))
	}

	// Запускаем сборщики данных в отдельных горутинах
	interval := time.Duration(cfg.Analysis.IntervalSeconds) * time.Second
	dataCollectors := []collector.DataCollector{
		collector.NewCandleCollector(client, store, cfg.Trading.InstID,
			[]string{cfg.Strategy.TrendBar, cfg.Strategy.EntryBar}, interval),
		collector.NewFundingRateCollector(client, store, cfg.Trading.InstID, interval),
		collector.NewOpenInterestCollector(client, store, cfg.Trading.InstID, interval),
	}

	for _, c := range dataCollectors {
		c := c // Локальная копия для горутины
		go func() {
			defer c.Stop()
			if err := c.Start(ctx); err != nil {
				log.Printf("Предупреждение: ошибка запуска сборщика данных: %v", err)
			}
		}()
	}

	// Запускаем торговый цикл в горутине
	go func() {
		// Первый цикл сразу после старта
		runCycle(ctx, eng, client, cfg.Trading.InstID, userInterface)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runCycle(ctx, eng, client, cfg.Trading.InstID, userInterface)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Запускаем UI в основном потоке (блокирующий вызов)
	// Это последняя инструкция в основном потоке
	userInterface.Start()
}

// runCycle выполняет один цикл движка и обновляет UI
func runCycle(ctx context.Context, eng *engine.Engine, client exchange.Client, instID string, userInterface *ui.TermUI) {
	ins, err := eng.RunCycle(ctx)
	if err != nil {
		logger.Error("Ошибка торгового цикла", zap.Error(err))
	}
	if ins == nil {
		return
	}

	position := currentPosition(ctx, client, instID)
	userInterface.UpdateCycle(ins, position)
}

// currentPosition читает позицию для отображения, ошибки не фатальны
func currentPosition(ctx context.Context, client exchange.Client, instID string) *models.Position {
	positions, err := client.Positions(ctx, instID)
	if err != nil {
		logger.Warn("Не удалось получить позицию для UI", zap.Error(err))
		return nil
	}
	for _, p := range positions {
		if p.InstID == instID && p.Size != 0 {
			return p
		}
	}
	return nil
}
