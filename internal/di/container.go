package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/adapters/review"
	"github.com/nfraser/mail-triage/internal/config"
	"github.com/nfraser/mail-triage/internal/core"
	"github.com/nfraser/mail-triage/internal/corpus"
	"github.com/nfraser/mail-triage/internal/factory"
	"github.com/nfraser/mail-triage/internal/logging"
	"github.com/nfraser/mail-triage/internal/rules"
	"github.com/nfraser/mail-triage/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMailFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register completion client
	if err := container.Provide(func(f *factory.LLMFactory) (core.CompletionClient, error) {
		return f.CreateCompletionClient()
	}); err != nil {
		return nil, err
	}

	// Register repositories
	if err := container.Provide(func(f *factory.StoreFactory) (factory.Repositories, error) {
		return f.CreateRepositories()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(repos factory.Repositories) core.TaskRepository {
		return repos.Tasks
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(repos factory.Repositories) core.CorpusRepository {
		return repos.Corpus
	}); err != nil {
		return nil, err
	}

	// Register mail gateway
	if err := container.Provide(func(f *factory.MailFactory) (core.MailGateway, error) {
		return f.CreateMailGateway()
	}); err != nil {
		return nil, err
	}

	// Register sender rules
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.SenderRules {
		return rules.NewEngine(cfg.GetSenderRules(), logger)
	}); err != nil {
		return nil, err
	}

	// Register few-shot selector
	if err := container.Provide(func(cfg *config.Config, tp *utils.TextProcessor, logger *zap.Logger) core.ExampleSelector {
		selectorCfg := cfg.GetSelector()
		return corpus.NewSelector(
			selectorCfg.MaxExamples,
			selectorCfg.MinScore,
			selectorCfg.SubjectBudget,
			selectorCfg.BodyBudget,
			tp,
			logger,
		)
	}); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(
		client core.CompletionClient,
		senderRules core.SenderRules,
		tp *utils.TextProcessor,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.Classifier {
		llmCfg := cfg.GetLLM()
		maxBodySize := cfg.GetInt(llmCfg.Provider + ".max_body_size")
		return core.NewClassifier(client, senderRules, tp, maxBodySize, logger)
	}); err != nil {
		return nil, err
	}

	// Register confidence policy
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *core.Policy {
		return core.NewPolicy(cfg.GetThresholds(), logger)
	}); err != nil {
		return nil, err
	}

	// Register action-item extractor
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *core.Extractor {
		pipelineCfg := cfg.GetPipeline()
		return core.NewExtractor(nil, pipelineCfg.FYIInformationalTasks, logger)
	}); err != nil {
		return nil, err
	}

	// Register task sink
	if err := container.Provide(func(repo core.TaskRepository, logger *zap.Logger) *core.TaskSink {
		return core.NewTaskSink(repo, logger)
	}); err != nil {
		return nil, err
	}

	// Register review queue
	if err := container.Provide(review.NewQueue); err != nil {
		return nil, err
	}
	if err := container.Provide(func(q *review.Queue) core.ReviewQueue {
		return q
	}); err != nil {
		return nil, err
	}

	// Register pipeline
	if err := container.Provide(func(
		classifier *core.Classifier,
		policy *core.Policy,
		extractor *core.Extractor,
		sink *core.TaskSink,
		reviewQueue core.ReviewQueue,
		corpusRepo core.CorpusRepository,
		selector core.ExampleSelector,
		mail core.MailGateway,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.Pipeline {
		pipelineCfg := cfg.GetPipeline()
		mailCfg := cfg.GetMail()

		opts := core.PipelineOptions{}
		if pipelineCfg.MoveSpam {
			opts.MoveSpamToFolder = mailCfg.JunkFolder
		}
		if pipelineCfg.ArchiveNewsletters {
			opts.ArchiveNewslettersTo = mailCfg.ArchiveFolder
		}

		return core.NewPipeline(
			classifier,
			policy,
			extractor,
			sink,
			reviewQueue,
			corpusRepo,
			selector,
			mail,
			opts,
			logger,
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
